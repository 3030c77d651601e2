// Package store persists analysis records in a document store with
// health-check-triggered reconnection and per-operation retry.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"boletin-backend/internal/shared/telemetry"
)

// Config controls store connectivity and retry behavior.
type Config struct {
	URI        string
	Database   string
	Collection string
	// MaxRetryAttempts bounds both reconnection and per-operation retries.
	MaxRetryAttempts int
	// RetryBaseDelay is the backoff unit: linear for operation retries,
	// exponential for reconnection.
	RetryBaseDelay time.Duration
	// HealthCheckInterval is how long a connection is trusted between
	// liveness probes.
	HealthCheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 5 * time.Minute
	}
	return c
}

// Store is a resilient document-store client. The pooled connection is the
// shared resource across concurrent requests; connection lifecycle (probe,
// reconnect) is mutually exclusive via mu.
type Store struct {
	cfg    Config
	client *mongo.Client
	coll   *mongo.Collection

	mu        sync.Mutex
	lastCheck time.Time

	// Overridable for tests.
	probe     func(ctx context.Context) error
	reconnect func(ctx context.Context) error
}

// New connects to the document store, verifies liveness and creates the
// supporting indexes. Index-creation failure is logged as a warning and
// does not abort startup.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URI) == "" || strings.TrimSpace(cfg.Database) == "" || strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("store config requires URI, database and collection")
	}

	s := &Store{cfg: cfg}
	s.probe = s.ping
	s.reconnect = s.rebuildConnection

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	telemetry.Info("store.connected", map[string]any{
		"database":   cfg.Database,
		"collection": cfg.Collection,
		"pool_size":  maxPoolSize,
	})
	return s, nil
}

const (
	maxPoolSize = 10
	minPoolSize = 1
)

func (s *Store) connect(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetMaxPoolSize(maxPoolSize).
		SetMinPoolSize(minPoolSize).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("store connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("store ping: %w", err)
	}

	s.client = client
	s.coll = client.Database(s.cfg.Database).Collection(s.cfg.Collection)
	s.lastCheck = time.Now().UTC()

	s.createIndexes(ctx)
	return nil
}

func (s *Store) createIndexes(ctx context.Context) {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "metadata.created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "metadata.status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "date", Value: 1}, {Key: "section", Value: 1}},
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		telemetry.Warn("store.index_creation_failed", map[string]any{
			"collection": s.cfg.Collection,
			"error":      err.Error(),
		})
		return
	}
	telemetry.Info("store.indexes_created", map[string]any{"collection": s.cfg.Collection})
}

func (s *Store) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// ensureConnection probes the connection if the trust interval has elapsed
// and reconnects on probe failure. It returns the collection handle taken
// under the lock: reconnection replaces s.coll, so operations must run on
// the snapshot, never on the field.
func (s *Store) ensureConnection(ctx context.Context) (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastCheck.IsZero() && time.Since(s.lastCheck) < s.cfg.HealthCheckInterval {
		return s.coll, nil
	}

	if err := s.probe(ctx); err != nil {
		telemetry.Warn("store.connection_lost", map[string]any{
			"error":                   err.Error(),
			"attempting_reconnection": true,
		})
		if err := s.reconnect(ctx); err != nil {
			return nil, err
		}
		return s.coll, nil
	}

	s.lastCheck = time.Now().UTC()
	return s.coll, nil
}

// rebuildConnection closes and rebuilds the pooled connection with
// exponential backoff. Exhausting attempts surfaces a connection failure.
func (s *Store) rebuildConnection(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetryAttempts; attempt++ {
		if s.client != nil {
			_ = s.client.Disconnect(context.Background())
			s.client = nil
		}
		if attempt > 1 {
			delay := s.cfg.RetryBaseDelay << (attempt - 2)
			if err := sleepCtx(ctx, delay); err != nil {
				return fmt.Errorf("store reconnect: %w", err)
			}
		}
		if err := s.connect(ctx); err != nil {
			lastErr = err
			telemetry.Warn("store.reconnection_attempt_failed", map[string]any{
				"attempt":      attempt,
				"max_attempts": s.cfg.MaxRetryAttempts,
				"error":        err.Error(),
			})
			continue
		}
		telemetry.Info("store.reconnected", map[string]any{
			"attempt":  attempt,
			"database": s.cfg.Database,
		})
		return nil
	}
	return fmt.Errorf("store connection lost after %d reconnect attempts: %w", s.cfg.MaxRetryAttempts, lastErr)
}

// executeWithRetry runs a store operation, retrying connectivity-class
// failures with linear backoff and forcing a connection re-check before
// each retry. Non-connectivity failures propagate immediately. The op
// receives the collection snapshot from ensureConnection so that a
// concurrent reconnect never swaps the handle mid-operation.
func (s *Store) executeWithRetry(ctx context.Context, opName string, op func(ctx context.Context, coll *mongo.Collection) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetryAttempts; attempt++ {
		coll, err := s.ensureConnection(ctx)
		if err != nil {
			return err
		}

		err = op(ctx, coll)
		if err == nil {
			return nil
		}
		if !isConnectivityError(err) {
			return err
		}

		lastErr = err
		telemetry.Warn("store.operation_connection_error", map[string]any{
			"operation": opName,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		if attempt == s.cfg.MaxRetryAttempts {
			break
		}
		if err := sleepCtx(ctx, time.Duration(attempt)*s.cfg.RetryBaseDelay); err != nil {
			return fmt.Errorf("store retry: %w", err)
		}
		s.forceCheck()
	}
	return fmt.Errorf("store operation %s failed: connection error after %d attempts: %w", opName, s.cfg.MaxRetryAttempts, lastErr)
}

// forceCheck invalidates the trust window so the next ensureConnection
// issues a fresh probe.
func (s *Store) forceCheck() {
	s.mu.Lock()
	s.lastCheck = time.Time{}
	s.mu.Unlock()
}

// isConnectivityError reports whether a failure is attributable to
// transient network/connection issues and therefore eligible for retry.
// Driver helpers are preferred; keyword matching is the fallback for
// errors the driver does not type.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "server selection") ||
		strings.Contains(msg, "socket") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "disconnected") ||
		strings.Contains(msg, "context deadline exceeded")
}

// Close releases the pooled connection.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	telemetry.Info("store.closed", map[string]any{"database": s.cfg.Database})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
