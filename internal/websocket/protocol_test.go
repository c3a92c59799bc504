package websocket

import (
	"sync"
	"testing"
	"time"

	"stream-gateway/internal/auth"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protocolHub(t *testing.T) (*Hub, *stubAuthorizer) {
	t.Helper()
	expiry := testEpoch.Add(time.Hour)
	validator := stubValidator{
		"good":    {Valid: true, SubjectID: "7", ExpiresAt: expiry},
		"expired": {Expired: true},
	}
	authorizer := newStubAuthorizer(map[string][]string{"7": {"production_events"}})
	h, _ := newTestHub(t, validator, authorizer)
	return h, authorizer
}

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *ClientMessage
		wantErr error
	}{
		{"authenticate", `{"type":"authenticate","token":"abc"}`, &ClientMessage{Type: MessageTypeAuthenticate, Token: "abc"}, nil},
		{"subscribe", `{"type":"subscribe","streams":["a","b"]}`, &ClientMessage{Type: MessageTypeSubscribe, Streams: []string{"a", "b"}}, nil},
		{"subscribe null streams", `{"type":"subscribe","streams":null}`, &ClientMessage{Type: MessageTypeSubscribe}, nil},
		{"ping", `{"type":"ping"}`, &ClientMessage{Type: MessageTypePing}, nil},
		{"unknown type decodes", `{"type":"dance"}`, &ClientMessage{Type: "dance"}, nil},
		{"not json", `hello`, nil, errMalformedMessage},
		{"json array", `[1,2]`, nil, errMalformedMessage},
		{"missing type", `{"token":"abc"}`, nil, errMissingType},
		{"non-string type", `{"type":5}`, nil, errMissingType},
		{"authenticate without token", `{"type":"authenticate"}`, nil, errMalformedMessage},
		{"authenticate numeric token", `{"type":"authenticate","token":12}`, nil, errMalformedMessage},
		{"subscribe without streams", `{"type":"subscribe"}`, nil, errMalformedMessage},
		{"subscribe with string", `{"type":"subscribe","streams":"a"}`, nil, errMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeClientMessage([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)

	h.handleMessage(c, []byte(`{"type":"authenticate","token":"good"}`))

	msg := lastMessage(t, c)
	assert.Equal(t, "auth_success", msg["type"])
	assert.Equal(t, c.ID(), msg["connectionId"])
	assert.Equal(t, "7", msg["userId"])
	assert.Equal(t, []string{"production_events"}, toStrings(msg["availableStreams"]))
	assert.Equal(t, testEpoch.Add(time.Hour).Format(time.RFC3339), msg["expiresAt"])

	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "7", c.SubjectID())
	assert.Empty(t, c.Topics(), "authentication grants no subscriptions by itself")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthAttempts.WithLabelValues(AuthResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthenticatedConnections))
}

func TestAuthenticateRejectionKeepsConnectionOpen(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)

	h.handleMessage(c, []byte(`{"type":"authenticate","token":"forged"}`))
	msg := lastMessage(t, c)
	assert.Equal(t, "auth_error", msg["type"])
	assert.Equal(t, "Invalid token", msg["message"])

	h.handleMessage(c, []byte(`{"type":"authenticate","token":"expired"}`))
	msg = lastMessage(t, c)
	assert.Equal(t, "auth_error", msg["type"])
	assert.Equal(t, "Token expired", msg["message"])

	assert.False(t, c.IsAuthenticated())
	assert.True(t, h.registry.Contains(c))

	// the client may retry
	h.handleMessage(c, []byte(`{"type":"authenticate","token":"good"}`))
	assert.Equal(t, "auth_success", lastMessage(t, c)["type"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthAttempts.WithLabelValues(AuthResultInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthAttempts.WithLabelValues(AuthResultExpired)))
}

func TestAuthenticateTwiceIsRejected(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)

	h.handleMessage(c, []byte(`{"type":"authenticate","token":"good"}`))
	drain(t, c)

	h.handleMessage(c, []byte(`{"type":"authenticate","token":"good"}`))
	msg := lastMessage(t, c)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "7", c.SubjectID())
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)

	h.handleMessage(c, []byte(`{"type":"subscribe","streams":["production_events"]}`))
	msg := lastMessage(t, c)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Authentication required", msg["message"])
	assert.Empty(t, c.Topics())
	assert.True(t, h.registry.Contains(c))
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)

	h.handleMessage(c, []byte(`not json`))
	assert.Equal(t, "error", lastMessage(t, c)["type"])

	h.handleMessage(c, []byte(`{"type":"launch_missiles"}`))
	msg := lastMessage(t, c)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "launch_missiles")

	assert.True(t, h.registry.Contains(c))
}

func TestServerOnlyTypesAreRejected(t *testing.T) {
	h, _ := protocolHub(t)
	c := authenticated(t, h, "1", "production_events")

	for _, raw := range []string{
		`{"type":"event","kind":"k","topic":"production_events","payload":{}}`,
		`{"type":"auth_success"}`,
		`{"type":"subscription_confirmed"}`,
	} {
		h.handleMessage(c, []byte(raw))
		msg := lastMessage(t, c)
		assert.Equal(t, "error", msg["type"], raw)
		assert.Contains(t, msg["message"], "Unknown message type: ", raw)
	}
	assert.Equal(t, []string{"production_events"}, c.Topics())
	assert.True(t, h.registry.Contains(c))
}

func TestPingIsAnsweredBeforeAuthentication(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)

	h.handleMessage(c, []byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", lastMessage(t, c)["type"])

	h.handleMessage(c, []byte(`{"type":"pong"}`))
	assert.Empty(t, drain(t, c))
}

func TestAuthenticationDiscardedWhenConnectionClosesMidLookup(t *testing.T) {
	h, authorizer := protocolHub(t)
	gate := make(chan struct{})
	authorizer.gate = gate
	c := addConnection(h)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.handleMessage(c, []byte(`{"type":"authenticate","token":"good"}`))
	}()

	require.Eventually(t, func() bool {
		return authorizer.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	h.disconnect(c, CloseNormal, "client went away", "")
	close(gate)
	wg.Wait()

	assert.False(t, c.IsAuthenticated())
	assert.False(t, h.registry.Contains(c))
	for _, msg := range drain(t, c) {
		assert.NotEqual(t, "auth_success", msg["type"])
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.AuthenticatedConnections))
}

func TestRegistryReplacementIsNotLive(t *testing.T) {
	h, _ := protocolHub(t)
	c := addConnection(h)
	assert.True(t, h.isLive(c))

	impostor := &Connection{id: c.id}
	h.registry.Add(impostor)
	assert.False(t, h.isLive(c), "a different instance under the same id is not the same connection")
}

func TestAuthResultFromRealValidator(t *testing.T) {
	validator := auth.NewTokenValidator("test-secret-value", nil)
	token, err := auth.NewToken("test-secret-value", "7", time.Hour, time.Now())
	require.NoError(t, err)

	h, _ := newTestHub(t, validator, newStubAuthorizer(map[string][]string{"7": {"job_updates"}}))
	c := addConnection(h)
	h.handleMessage(c, []byte(`{"type":"authenticate","token":"`+token+`"}`))

	msg := lastMessage(t, c)
	assert.Equal(t, "auth_success", msg["type"])
	assert.Equal(t, []string{"job_updates"}, toStrings(msg["availableStreams"]))
}
