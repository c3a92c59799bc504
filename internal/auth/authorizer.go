package auth

import (
	"context"
	"log/slog"
	"sort"

	"stream-gateway/internal/models"
)

// IdentityStore is the external identity/role collaborator. Every method may
// be slow and may fail.
type IdentityStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserRoles(ctx context.Context, id string) ([]models.UserRole, error)
	GetRoleByID(ctx context.Context, roleID uint) (*models.Role, error)
}

// Authorizer resolves the streams a subject may read. Lookup failures resolve
// to no access.
type Authorizer struct {
	store IdentityStore
	table PermissionTable
}

func NewAuthorizer(store IdentityStore, table PermissionTable) *Authorizer {
	return &Authorizer{store: store, table: table}
}

// AvailableTopics returns the sorted union of the streams granted by each of
// the subject's roles.
func (a *Authorizer) AvailableTopics(ctx context.Context, subjectID string) []string {
	topics := make([]string, 0)
	if subjectID == "" || a.store == nil {
		return topics
	}

	user, err := a.store.GetUserByID(ctx, subjectID)
	if err != nil {
		slog.Warn("Identity lookup failed, denying all streams", "userID", subjectID, "error", err)
		return topics
	}
	if user == nil || !user.IsActive {
		slog.Info("Subject inactive, denying all streams", "userID", subjectID)
		return topics
	}

	links, err := a.store.GetUserRoles(ctx, subjectID)
	if err != nil {
		slog.Warn("Role lookup failed, denying all streams", "userID", subjectID, "error", err)
		return topics
	}

	granted := make(map[string]struct{})
	for _, link := range links {
		role, err := a.store.GetRoleByID(ctx, link.RoleID)
		if err != nil || role == nil {
			slog.Warn("Role resolution failed, skipping role", "userID", subjectID, "roleID", link.RoleID, "error", err)
			continue
		}
		for _, stream := range a.table.StreamsFor(role.Name) {
			granted[stream] = struct{}{}
		}
	}

	for stream := range granted {
		topics = append(topics, stream)
	}
	sort.Strings(topics)
	return topics
}

// HasAccess reports whether subjectID may read topic, recomputed from the
// identity store on every call.
func (a *Authorizer) HasAccess(ctx context.Context, subjectID, topic string) bool {
	if topic == "" {
		return false
	}
	for _, t := range a.AvailableTopics(ctx, subjectID) {
		if t == topic {
			return true
		}
	}
	return false
}
