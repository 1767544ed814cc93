package cache

import (
	"context"
	"errors"

	"github.com/llamalot/llamalot/internal/model"
	"github.com/llamalot/llamalot/internal/ollama"
)

// GetModels returns the model catalog. With force set, or when the
// cache has gone stale and a remote client is attached, the catalog is
// refreshed from the server first; an unreachable server degrades to
// the cached list.
func (m *Manager) GetModels(ctx context.Context, force bool) ([]model.Model, error) {
	client := m.remote()

	if (force || m.shouldRefresh(ctx)) && client != nil {
		var err error
		if force {
			err = m.refreshAll(ctx, client)
		} else {
			err = m.smartRefresh(ctx, client)
		}
		if err != nil {
			if !errors.Is(err, ollama.ErrUnavailable) {
				return nil, err
			}
			m.log.Warn().Err(err).Msg("model refresh failed, serving cached data")
		}
	}

	return m.store.ListModels(ctx, "")
}

// refreshAll overwrites the cache with the full detailed catalog.
func (m *Manager) refreshAll(ctx context.Context, client ollama.Client) error {
	m.log.Info().Msg("force refreshing models from server")

	serverModels, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	for i := range serverModels {
		if err := m.store.SaveModel(ctx, &serverModels[i]); err != nil {
			return err
		}
	}

	m.stampRefresh(ctx)
	m.log.Info().Int("models", len(serverModels)).Msg("force refresh complete")
	return nil
}

// smartRefresh fetches the lightweight listing and makes the expensive
// per-model detail call only for entries that are new, missing detail
// data, or whose digest no longer matches the cached copy. Entries that
// still match keep their cached details and adopt the server's size,
// digest, and modified time.
func (m *Manager) smartRefresh(ctx context.Context, client ollama.Client) error {
	m.log.Info().Msg("refreshing models from server")

	serverModels, err := client.ListModelsBasic(ctx)
	if err != nil {
		return err
	}

	cachedList, err := m.store.ListModels(ctx, "")
	if err != nil {
		return err
	}
	cached := make(map[string]*model.Model, len(cachedList))
	for i := range cachedList {
		cached[cachedList[i].Name] = &cachedList[i]
	}

	detailFetches := 0
	for i := range serverModels {
		sm := &serverModels[i]
		cm := cached[sm.Name]

		needsDetails := cm == nil || !cm.HasDetails() || cm.Digest != sm.Digest

		var save *model.Model
		if needsDetails {
			detailed, err := client.GetModelInfo(ctx, sm.Name)
			if err != nil {
				// Best effort: keep whatever we have for this entry.
				m.log.Warn().Str("model", sm.Name).Err(err).Msg("detail fetch failed")
				if cm != nil {
					save = cm
				} else {
					save = sm
				}
			} else {
				detailFetches++
				save = detailed
			}
		} else {
			cm.Size = sm.Size
			cm.Digest = sm.Digest
			cm.ModifiedAt = sm.ModifiedAt
			save = cm
		}

		if err := m.store.SaveModel(ctx, save); err != nil {
			return err
		}
	}

	m.stampRefresh(ctx)
	m.log.Info().
		Int("models", len(serverModels)).
		Int("detail_fetches", detailFetches).
		Msg("refresh complete")
	return nil
}

// GetModel is a cache-first lookup for one model. On a miss, or when
// details are requested and the cached entry has none, the server is
// consulted and the result persisted. An unreachable server returns
// whatever the cache held.
func (m *Manager) GetModel(ctx context.Context, name string, fetchDetails bool) (*model.Model, error) {
	cached, err := m.store.GetModel(ctx, name)
	if err != nil {
		return nil, err
	}

	client := m.remote()
	if client == nil || (cached != nil && (!fetchDetails || cached.Info != nil)) {
		return cached, nil
	}

	result := cached
	if result == nil {
		serverModels, err := client.ListModels(ctx)
		if err != nil {
			if errors.Is(err, ollama.ErrUnavailable) {
				m.log.Warn().Str("model", name).Err(err).Msg("server unreachable, serving cache")
				return cached, nil
			}
			return nil, err
		}
		for i := range serverModels {
			if serverModels[i].Name == name {
				result = &serverModels[i]
				break
			}
		}
	}

	if result != nil && fetchDetails && result.Info == nil {
		detailed, err := client.GetModelInfo(ctx, name)
		if err != nil {
			if !errors.Is(err, ollama.ErrUnavailable) {
				return nil, err
			}
			m.log.Warn().Str("model", name).Err(err).Msg("detail fetch failed, serving basic entry")
		} else {
			result = detailed
		}
	}

	if result != nil {
		if err := m.store.SaveModel(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// RefreshModel unconditionally fetches one model's details from the
// server and overwrites the cached entry. Without a client, or with the
// server unreachable, it returns nil.
func (m *Manager) RefreshModel(ctx context.Context, name string) (*model.Model, error) {
	client := m.remote()
	if client == nil {
		m.log.Warn().Str("model", name).Msg("no client attached, cannot refresh")
		return nil, nil
	}

	detailed, err := client.GetModelInfo(ctx, name)
	if err != nil {
		if errors.Is(err, ollama.ErrUnavailable) {
			m.log.Error().Str("model", name).Err(err).Msg("model refresh failed")
			return nil, nil
		}
		return nil, err
	}

	if err := m.store.SaveModel(ctx, detailed); err != nil {
		return nil, err
	}
	return detailed, nil
}

// DeleteModelCache drops one model from the cache. Returns true if it
// was cached.
func (m *Manager) DeleteModelCache(ctx context.Context, name string) (bool, error) {
	return m.store.DeleteModel(ctx, name)
}
