// Package prefs manages the operator's graph view preferences. Preferences
// are process-wide, initialized from a persistence backend on first use,
// and mutated only through explicit setter operations, each of which
// persists the updated set.
package prefs

import (
	"log/slog"
	"sync"

	"github.com/gridpulse/gridpulse-ui/internal/layout"
)

// Preferences holds the persisted graph view settings.
type Preferences struct {
	Direction   layout.Direction `json:"direction"`
	ShowLegend  bool             `json:"showLegend"`
	ShowMinimap bool             `json:"showMinimap"`
	ShowStats   bool             `json:"showStats"`
	SnapToGrid  bool             `json:"snapToGrid"`
}

// Defaults returns the preference set used when nothing is persisted yet.
func Defaults() Preferences {
	return Preferences{
		Direction:   layout.Vertical,
		ShowLegend:  true,
		ShowMinimap: false,
		ShowStats:   true,
		SnapToGrid:  false,
	}
}

// Store persists a preference set. Implementations: FileStore, RedisStore.
type Store interface {
	Load() (Preferences, bool, error)
	Save(p Preferences) error
}

// Service holds the current preferences and writes every change through
// to the store. Layout computation never mutates preferences.
type Service struct {
	mu      sync.RWMutex
	current Preferences
	store   Store
	logger  *slog.Logger
}

// NewService loads preferences from the store, falling back to defaults
// when nothing is persisted or the load fails.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger, current: Defaults()}

	if store != nil {
		p, ok, err := store.Load()
		switch {
		case err != nil:
			logger.Warn("failed to load preferences, using defaults", "error", err)
		case ok:
			if p.Direction != layout.Horizontal {
				p.Direction = layout.Vertical
			}
			s.current = p
		}
	}
	return s
}

// Get returns the current preference set.
func (s *Service) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the whole preference set and persists it.
func (s *Service) Set(p Preferences) error {
	if p.Direction != layout.Horizontal {
		p.Direction = layout.Vertical
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return s.persist(p)
}

// SetDirection updates the layout direction and persists.
func (s *Service) SetDirection(d layout.Direction) error {
	return s.update(func(p *Preferences) { p.Direction = d })
}

// ToggleLegend flips the legend visibility and persists.
func (s *Service) ToggleLegend() error {
	return s.update(func(p *Preferences) { p.ShowLegend = !p.ShowLegend })
}

// ToggleMinimap flips the minimap visibility and persists.
func (s *Service) ToggleMinimap() error {
	return s.update(func(p *Preferences) { p.ShowMinimap = !p.ShowMinimap })
}

// ToggleStats flips the stats panel visibility and persists.
func (s *Service) ToggleStats() error {
	return s.update(func(p *Preferences) { p.ShowStats = !p.ShowStats })
}

// ToggleSnapToGrid flips grid snapping and persists.
func (s *Service) ToggleSnapToGrid() error {
	return s.update(func(p *Preferences) { p.SnapToGrid = !p.SnapToGrid })
}

func (s *Service) update(mutate func(*Preferences)) error {
	s.mu.Lock()
	mutate(&s.current)
	p := s.current
	s.mu.Unlock()
	return s.persist(p)
}

func (s *Service) persist(p Preferences) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(p); err != nil {
		s.logger.Warn("failed to persist preferences", "error", err)
		return err
	}
	return nil
}
