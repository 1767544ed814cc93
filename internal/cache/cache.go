// Package cache coordinates the local store with the remote Ollama
// server: it decides when cached model data is trustworthy, refreshes it
// when it is not, and prefers stale data over failing the caller.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llamalot/llamalot/internal/model"
	"github.com/llamalot/llamalot/internal/ollama"
	"github.com/llamalot/llamalot/internal/store"
)

// App-state keys owned by the cache layer.
const (
	keyLastRefresh  = "last_model_refresh"
	keyLastFullSync = "last_full_sync"
	keyAutoSync     = "cache_auto_sync"
	keyTTLHours     = "cache_ttl_hours"
)

const defaultTTL = time.Hour

// Manager sits between the application and the store. The remote client
// is optional; without one every read serves cached data.
type Manager struct {
	store  *store.Store
	client ollama.Client
	log    zerolog.Logger

	mu       sync.Mutex
	autoSync bool
	ttl      time.Duration
}

// New creates a manager with auto-sync enabled and a one hour TTL.
// Call LoadConfiguration to restore persisted tunables.
func New(st *store.Store, client ollama.Client, log zerolog.Logger) *Manager {
	return &Manager{
		store:    st,
		client:   client,
		log:      log,
		autoSync: true,
		ttl:      defaultTTL,
	}
}

// SetClient attaches or replaces the remote client.
func (m *Manager) SetClient(client ollama.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
}

func (m *Manager) remote() ollama.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// Configure updates the cache tunables and persists them so they
// survive restarts. A nil parameter leaves its setting untouched.
func (m *Manager) Configure(ctx context.Context, autoSync *bool, ttlHours *float64) error {
	// Persist first so a write failure cannot leave the in-memory
	// tunables disagreeing with the store.
	if autoSync != nil {
		if err := m.store.SetAppState(ctx, keyAutoSync, *autoSync, "automatic model cache refresh"); err != nil {
			return err
		}
		m.mu.Lock()
		m.autoSync = *autoSync
		m.mu.Unlock()
		m.log.Info().Bool("auto_sync", *autoSync).Msg("cache auto-sync configured")
	}
	if ttlHours != nil {
		if err := m.store.SetAppState(ctx, keyTTLHours, *ttlHours, "model cache TTL in hours"); err != nil {
			return err
		}
		m.mu.Lock()
		m.ttl = time.Duration(float64(time.Hour) * *ttlHours)
		m.mu.Unlock()
		m.log.Info().Float64("ttl_hours", *ttlHours).Msg("cache TTL configured")
	}
	return nil
}

// LoadConfiguration restores the persisted tunables, falling back to
// defaults when nothing is stored.
func (m *Manager) LoadConfiguration(ctx context.Context) {
	autoSync, _ := m.store.GetAppState(ctx, keyAutoSync, true).(bool)
	ttlHours := asFloat(m.store.GetAppState(ctx, keyTTLHours, 1.0), 1.0)

	m.mu.Lock()
	m.autoSync = autoSync
	m.ttl = time.Duration(float64(time.Hour) * ttlHours)
	m.mu.Unlock()

	m.log.Debug().Bool("auto_sync", autoSync).Float64("ttl_hours", ttlHours).
		Msg("cache configuration loaded")
}

// shouldRefresh reports whether the cached catalog has gone stale: never
// with auto-sync off, always when no refresh has been recorded, and
// otherwise once the last refresh is older than the TTL.
func (m *Manager) shouldRefresh(ctx context.Context) bool {
	m.mu.Lock()
	autoSync, ttl := m.autoSync, m.ttl
	m.mu.Unlock()

	if !autoSync {
		return false
	}

	raw, ok := m.store.GetAppState(ctx, keyLastRefresh, nil).(string)
	if !ok || raw == "" {
		return true
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true
	}
	return time.Since(last) > ttl
}

func (m *Manager) stampRefresh(ctx context.Context) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := m.store.SetAppState(ctx, keyLastRefresh, now, "last model refresh"); err != nil {
		m.log.Warn().Err(err).Msg("failed to record refresh timestamp")
	}
}

// Conversation pass-throughs. The manager is the single point of access
// so caching policy can be layered in later without touching callers.

func (m *Manager) SaveConversation(ctx context.Context, c *model.Conversation) error {
	return m.store.SaveConversation(ctx, c)
}

func (m *Manager) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return m.store.GetConversation(ctx, id)
}

func (m *Manager) ListConversations(ctx context.Context, modelFilter string, limit int) ([]model.ConversationSummary, error) {
	return m.store.ListConversations(ctx, modelFilter, limit)
}

func (m *Manager) DeleteConversation(ctx context.Context, id string) (bool, error) {
	return m.store.DeleteConversation(ctx, id)
}

func (m *Manager) ClearConversations(ctx context.Context) (int, error) {
	return m.store.ClearAllConversations(ctx)
}

// App-state pass-throughs.

func (m *Manager) GetAppSetting(ctx context.Context, key string, def any) any {
	return m.store.GetAppState(ctx, key, def)
}

func (m *Manager) SetAppSetting(ctx context.Context, key string, value any, description string) error {
	return m.store.SetAppState(ctx, key, value, description)
}

func (m *Manager) DeleteAppSetting(ctx context.Context, key string) (bool, error) {
	return m.store.DeleteAppState(ctx, key)
}

// CleanupOldData delegates age-based cleanup to the store.
func (m *Manager) CleanupOldData(ctx context.Context, days int) (*store.CleanupStats, error) {
	return m.store.CleanupOldData(ctx, days)
}

// CacheStats merges store statistics with the cache configuration.
type CacheStats struct {
	store.Stats
	AutoSync      bool    `json:"auto_sync"`
	CacheTTLHours float64 `json:"cache_ttl_hours"`
	HasClient     bool    `json:"has_client"`
}

// Stats returns merged store and cache statistics.
func (m *Manager) Stats(ctx context.Context) (*CacheStats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return &CacheStats{
		Stats:         *st,
		AutoSync:      m.autoSync,
		CacheTTLHours: m.ttl.Hours(),
		HasClient:     m.client != nil,
	}, nil
}

// ResetCache wipes all cached models and conversation history and
// clears the refresh timestamps, returning the cache to its
// just-migrated, empty state.
func (m *Manager) ResetCache(ctx context.Context) error {
	m.log.Warn().Msg("resetting cache")

	if err := m.store.PurgeCache(ctx); err != nil {
		return err
	}
	if _, err := m.store.DeleteAppState(ctx, keyLastRefresh); err != nil {
		return err
	}
	if _, err := m.store.DeleteAppState(ctx, keyLastFullSync); err != nil {
		return err
	}
	return nil
}

func asFloat(v any, def float64) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return def
	}
}
