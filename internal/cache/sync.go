package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoClient is returned by SyncWithServer when no remote client is
// attached.
var ErrNoClient = errors.New("no ollama client attached")

// Progress receives sync stage descriptions with a completion fraction
// in [0, 1].
type Progress func(stage string, fraction float64)

// SyncResult aggregates what a full synchronization did.
type SyncResult struct {
	ModelsUpdated int      `json:"models_updated"`
	ModelsRemoved int      `json:"models_removed"`
	Errors        []string `json:"errors,omitempty"`
}

// SyncWithServer reconciles the cache against the server: every remote
// model is detail-fetched and overwritten locally, then cached models
// absent from the remote catalog are removed. Per-model failures are
// collected in the result and do not abort the pass; a catalog-level
// failure is returned, since an explicit sync must report that it did
// not complete.
func (m *Manager) SyncWithServer(ctx context.Context, progress Progress) (*SyncResult, error) {
	client := m.remote()
	if client == nil {
		return nil, ErrNoClient
	}

	report := func(stage string, fraction float64) {
		if progress != nil {
			progress(stage, fraction)
		}
	}
	results := &SyncResult{}

	report("Fetching server models...", 0.1)
	serverModels, err := client.ListModels(ctx)
	if err != nil {
		err = fmt.Errorf("synchronization failed: %w", err)
		m.log.Error().Err(err).Msg("sync aborted")
		results.Errors = append(results.Errors, err.Error())
		return results, err
	}
	serverNames := make(map[string]bool, len(serverModels))
	for i := range serverModels {
		serverNames[serverModels[i].Name] = true
	}

	report("Fetching cached models...", 0.2)
	cachedModels, err := m.store.ListModels(ctx, "")
	if err != nil {
		return results, fmt.Errorf("synchronization failed: %w", err)
	}

	for i := range serverModels {
		name := serverModels[i].Name
		report("Updating model: "+name, 0.2+0.6*float64(i)/float64(len(serverModels)))

		detailed, err := client.GetModelInfo(ctx, name)
		if err != nil {
			msg := fmt.Sprintf("failed to update model %s: %v", name, err)
			m.log.Error().Str("model", name).Err(err).Msg("sync: model update failed")
			results.Errors = append(results.Errors, msg)
			continue
		}
		if err := m.store.SaveModel(ctx, detailed); err != nil {
			msg := fmt.Sprintf("failed to update model %s: %v", name, err)
			results.Errors = append(results.Errors, msg)
			continue
		}
		results.ModelsUpdated++
	}

	report("Removing stale models...", 0.8)
	for i := range cachedModels {
		name := cachedModels[i].Name
		if serverNames[name] {
			continue
		}
		if _, err := m.store.DeleteModel(ctx, name); err != nil {
			msg := fmt.Sprintf("failed to remove model %s: %v", name, err)
			m.log.Error().Str("model", name).Err(err).Msg("sync: model removal failed")
			results.Errors = append(results.Errors, msg)
			continue
		}
		results.ModelsRemoved++
		m.log.Debug().Str("model", name).Msg("removed stale model from cache")
	}

	m.stampRefresh(ctx)
	now := time.Now().UTC().Format(time.RFC3339)
	if err := m.store.SetAppState(ctx, keyLastFullSync, now, "last full server sync"); err != nil {
		m.log.Warn().Err(err).Msg("failed to record sync timestamp")
	}

	report("Synchronization complete", 1.0)
	m.log.Info().
		Int("updated", results.ModelsUpdated).
		Int("removed", results.ModelsRemoved).
		Int("errors", len(results.Errors)).
		Msg("synchronization complete")
	return results, nil
}

// SyncStatus describes the freshness of the cache.
type SyncStatus struct {
	LastRefresh       string   `json:"last_refresh,omitempty"`
	LastFullSync      string   `json:"last_full_sync,omitempty"`
	NeedsRefresh      bool     `json:"needs_refresh"`
	AutoSync          bool     `json:"auto_sync"`
	CacheTTLHours     float64  `json:"cache_ttl_hours"`
	RefreshAgeMinutes *float64 `json:"refresh_age_minutes,omitempty"`
}

// SyncStatus reports the recorded refresh timestamps and whether the
// refresh policy considers the cache stale.
func (m *Manager) SyncStatus(ctx context.Context) *SyncStatus {
	lastRefresh, _ := m.store.GetAppState(ctx, keyLastRefresh, "").(string)
	lastFullSync, _ := m.store.GetAppState(ctx, keyLastFullSync, "").(string)

	m.mu.Lock()
	autoSync, ttl := m.autoSync, m.ttl
	m.mu.Unlock()

	status := &SyncStatus{
		LastRefresh:   lastRefresh,
		LastFullSync:  lastFullSync,
		NeedsRefresh:  m.shouldRefresh(ctx),
		AutoSync:      autoSync,
		CacheTTLHours: ttl.Hours(),
	}

	if lastRefresh != "" {
		if t, err := time.Parse(time.RFC3339, lastRefresh); err == nil {
			age := time.Since(t).Minutes()
			status.RefreshAgeMinutes = &age
		}
	}
	return status
}
