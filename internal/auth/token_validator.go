package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

// Result is the outcome of validating a bearer token.
type Result struct {
	Valid     bool
	SubjectID string
	ExpiresAt time.Time
	// Expired is set when the signature checked out but the exp claim has passed.
	Expired bool
}

// TokenValidator checks HS256 bearer tokens. It performs no I/O.
type TokenValidator struct {
	secret []byte
	parser *jwt.Parser
}

// subject claim names, in lookup order
var subjectClaims = []string{"userId", "user_id", "sub"}

func NewTokenValidator(secret string, clk clock.Clock) *TokenValidator {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenValidator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}
}

// Validate fails closed: anything that is not a well-formed, correctly signed,
// unexpired token carrying a subject yields Valid=false.
func (v *TokenValidator) Validate(token string) Result {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" || len(v.secret) == 0 {
		return Result{}
	}

	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			res := Result{Expired: true}
			if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
				res.ExpiresAt = exp.Time
			}
			return res
		}
		return Result{}
	}
	if !parsed.Valid {
		return Result{}
	}

	subject, ok := subjectFromClaims(claims)
	if !ok {
		return Result{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Result{}
	}

	return Result{Valid: true, SubjectID: subject, ExpiresAt: exp.Time}
}

func subjectFromClaims(claims jwt.MapClaims) (string, bool) {
	for _, name := range subjectClaims {
		raw, present := claims[name]
		if !present {
			continue
		}
		switch value := raw.(type) {
		case string:
			if value != "" {
				return value, true
			}
		case float64:
			if value >= 0 && value == float64(int64(value)) {
				return strconv.FormatInt(int64(value), 10), true
			}
		}
		return "", false
	}
	return "", false
}

// NewToken signs an HS256 token for subjectID that expires after ttl.
func NewToken(secret, subjectID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	claims := jwt.MapClaims{
		"userId": subjectID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
