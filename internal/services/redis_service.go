package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"stream-gateway/internal/database"
	"stream-gateway/internal/websocket"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// sorted set of subject ids scored by last-seen unix time
	onlineSubjectsKey = "gateway:online_subjects"
)

func connectionKey(connectionID string) string {
	return fmt.Sprintf("gateway:conn:%s", connectionID)
}

func subjectConnectionsKey(userID string) string {
	return fmt.Sprintf("gateway:subject:%s:conns", userID)
}

// RedisService keeps gateway presence in Redis and backs HTTP rate limiting.
// Every presence key is refreshed by heartbeats; a subject whose last-seen
// time is older than the presence TTL counts as offline even if its entry
// was never removed.
type RedisService struct {
	client      *database.RedisClient
	presenceTTL time.Duration
	clock       clock.Clock
}

func NewRedisService(client *database.RedisClient, presenceTTL time.Duration, clk clock.Clock) *RedisService {
	if presenceTTL <= 0 {
		presenceTTL = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &RedisService{
		client:      client,
		presenceTTL: presenceTTL,
		clock:       clk,
	}
}

// HandleLifecycle mirrors connection lifecycle changes into presence keys.
func (r *RedisService) HandleLifecycle(ctx context.Context, event websocket.LifecycleEvent) error {
	switch event.Action {
	case websocket.ActionOpened:
		return r.SetConnectionOpen(ctx, event.ConnectionID, event.Timestamp)
	case websocket.ActionAuthenticated:
		return r.SetSubjectOnline(ctx, event.ConnectionID, event.UserID, event.Timestamp)
	case websocket.ActionHeartbeat:
		return r.RefreshPresence(ctx, event.ConnectionID, event.UserID, event.Timestamp)
	case websocket.ActionClosed:
		return r.SetConnectionClosed(ctx, event.ConnectionID, event.UserID)
	default:
		return nil
	}
}

// =============================================================================
// Presence
// =============================================================================

func (r *RedisService) SetConnectionOpen(ctx context.Context, connectionID string, at time.Time) error {
	pipe := r.client.GetClient().Pipeline()
	pipe.HSet(ctx, connectionKey(connectionID), map[string]interface{}{
		"connected_at": at.Unix(),
	})
	pipe.Expire(ctx, connectionKey(connectionID), r.presenceTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to record connection", "connectionID", connectionID, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) SetSubjectOnline(ctx context.Context, connectionID, userID string, at time.Time) error {
	pipe := r.client.GetClient().Pipeline()
	pipe.HSet(ctx, connectionKey(connectionID), map[string]interface{}{
		"user_id":          userID,
		"authenticated_at": at.Unix(),
	})
	r.touchSubject(ctx, pipe, connectionID, userID, at)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set subject online", "userID", userID, "connectionID", connectionID, "error", err)
		return err
	}

	slog.Debug("Subject set to online", "userID", userID, "connectionID", connectionID)
	return nil
}

// RefreshPresence extends every presence key of a live authenticated
// connection and re-adds it to its subject's connection set.
func (r *RedisService) RefreshPresence(ctx context.Context, connectionID, userID string, at time.Time) error {
	if userID == "" {
		return nil
	}
	pipe := r.client.GetClient().Pipeline()
	pipe.HSet(ctx, connectionKey(connectionID), "last_seen", at.Unix())
	r.touchSubject(ctx, pipe, connectionID, userID, at)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to refresh presence", "userID", userID, "connectionID", connectionID, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) touchSubject(ctx context.Context, pipe redis.Pipeliner, connectionID, userID string, at time.Time) {
	pipe.ZAdd(ctx, onlineSubjectsKey, redis.Z{Score: float64(at.Unix()), Member: userID})
	pipe.Expire(ctx, onlineSubjectsKey, r.presenceTTL)
	pipe.SAdd(ctx, subjectConnectionsKey(userID), connectionID)
	pipe.Expire(ctx, subjectConnectionsKey(userID), r.presenceTTL)
	pipe.Expire(ctx, connectionKey(connectionID), r.presenceTTL)
}

// SetConnectionClosed removes the connection and marks its subject offline
// once no other connection of that subject remains.
func (r *RedisService) SetConnectionClosed(ctx context.Context, connectionID, userID string) error {
	rdb := r.client.GetClient()

	if err := rdb.Del(ctx, connectionKey(connectionID)).Err(); err != nil {
		slog.Error("Failed to delete connection", "connectionID", connectionID, "error", err)
		return err
	}
	if userID == "" {
		return nil
	}

	pipe := rdb.Pipeline()
	pipe.SRem(ctx, subjectConnectionsKey(userID), connectionID)
	remaining := pipe.SCard(ctx, subjectConnectionsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to update subject connections", "userID", userID, "error", err)
		return err
	}

	if remaining.Val() > 0 {
		return nil
	}
	if err := rdb.ZRem(ctx, onlineSubjectsKey, userID).Err(); err != nil {
		slog.Error("Failed to set subject offline", "userID", userID, "error", err)
		return err
	}

	slog.Debug("Subject set to offline", "userID", userID)
	return nil
}

func (r *RedisService) onlineCutoff() int64 {
	return r.clock.Now().Add(-r.presenceTTL).Unix()
}

func (r *RedisService) IsSubjectOnline(ctx context.Context, userID string) (bool, error) {
	score, err := r.client.GetClient().ZScore(ctx, onlineSubjectsKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) >= r.onlineCutoff(), nil
}

// GetOnlineSubjects lists subjects seen within the presence TTL and prunes
// the rest, e.g. entries left behind by a crashed gateway.
func (r *RedisService) GetOnlineSubjects(ctx context.Context) ([]string, error) {
	cutoff := r.onlineCutoff()

	pipe := r.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, onlineSubjectsKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	members := pipe.ZRangeByScore(ctx, onlineSubjectsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return members.Val(), nil
}

// =============================================================================
// PubSub Operations
// =============================================================================

func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	pubsub := r.client.GetClient().Subscribe(ctx, channels...)
	slog.Debug("Subscribed to channels", "channels", channels)
	return pubsub
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit is a sliding-window limiter over a sorted set.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.clock.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(limit), nil
}
