package app

import (
	"fmt"

	"caretalk/internal/store"
	"caretalk/pkg/domain"
)

const (
	defaultPageSize   = 50
	maxPageSize       = 100
	userSearchLimit   = 20
	maxContentLength  = 10000
	maxGroupNameRunes = 255
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
}

// App is the core messaging service: conversation registry, message log,
// unread tracking and group management over one shared store.
type App struct {
	store store.Store
}

// New constructs the application with database-backed storage unless a store
// is injected (tests pass the in-memory twin).
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	return &App{store: dataStore}, nil
}

// SyncUser refreshes the caller's directory row after the identity provider
// has authenticated them, keeping search results and sender summaries current.
func (a *App) SyncUser(u domain.User) error {
	return a.store.UpsertUser(u)
}

// SearchUsers finds users by name or email for starting a conversation.
func (a *App) SearchUsers(query string) ([]domain.User, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query parameter is required", ErrInvalidArgument)
	}
	return a.store.SearchUsers(query, userSearchLimit)
}

// canManageGroups is the single authorization predicate gating every Group
// Manager write operation.
func canManageGroups(u domain.User) bool {
	return u.Role == domain.RoleAdmin
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// userSummaries resolves profiles for ids, preserving lookup order.
func (a *App) userSummaries(ids []int64) (map[int64]domain.User, error) {
	users, err := a.store.GetUsers(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// participantProfiles joins membership rows with directory profiles.
func (a *App) participantProfiles(conversationID int64) ([]domain.ParticipantProfile, error) {
	parts, err := a.store.ListParticipants(conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	byID, err := a.userSummaries(ids)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ParticipantProfile, 0, len(parts))
	for _, p := range parts {
		res = append(res, domain.ParticipantProfile{
			User:       byID[p.UserID],
			JoinedAt:   p.JoinedAt,
			LastReadAt: p.LastReadAt,
		})
	}
	return res, nil
}
