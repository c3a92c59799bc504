package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"stream-gateway/internal/models"

	"gorm.io/gorm"
)

var (
	ErrInvalidSubject  = errors.New("invalid subject id")
	ErrSubjectNotFound = errors.New("subject not found")
	ErrRoleNotFound    = errors.New("role not found")
)

// IdentityRepository reads users and role assignments from the relational store.
type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	userID, err := parseSubjectID(id)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return &user, nil
}

func (r *IdentityRepository) GetUserRoles(ctx context.Context, id string) ([]models.UserRole, error) {
	userID, err := parseSubjectID(id)
	if err != nil {
		return nil, err
	}

	var links []models.UserRole
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to load roles for user %d: %w", userID, err)
	}
	return links, nil
}

func (r *IdentityRepository) GetRoleByID(ctx context.Context, roleID uint) (*models.Role, error) {
	var role models.Role
	err := r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", roleID).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to load role %d: %w", roleID, err)
	}
	return &role, nil
}

// EnsureRole returns the role called name, creating it if needed.
func (r *IdentityRepository) EnsureRole(ctx context.Context, name, description string) (*models.Role, error) {
	role := models.Role{Name: name}
	err := r.db.WithContext(ctx).
		Where(models.Role{Name: name}).
		Attrs(models.Role{Description: description}).
		FirstOrCreate(&role).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure role %q: %w", name, err)
	}
	return &role, nil
}

// EnsureUser returns the user with the given email, creating it if needed.
func (r *IdentityRepository) EnsureUser(ctx context.Context, username, email string) (*models.User, error) {
	user := models.User{Email: email}
	err := r.db.WithContext(ctx).
		Where(models.User{Email: email}).
		Attrs(models.User{Username: username, IsActive: true}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user %q: %w", email, err)
	}
	return &user, nil
}

// AssignRole links a user to a role; assigning twice is a no-op.
func (r *IdentityRepository) AssignRole(ctx context.Context, userID, roleID uint) error {
	link := models.UserRole{UserID: userID, RoleID: roleID}
	if err := r.db.WithContext(ctx).Where(link).FirstOrCreate(&link).Error; err != nil {
		return fmt.Errorf("failed to assign role %d to user %d: %w", roleID, userID, err)
	}
	return nil
}

func parseSubjectID(id string) (uint, error) {
	parsed, err := strconv.ParseUint(id, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSubject, id)
	}
	return uint(parsed), nil
}
