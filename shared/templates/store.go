// Package templates stores wallet configuration presets. The store is an
// explicit object created once at startup and passed to whoever needs it;
// observers register on the instance, not on package state.
package templates

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/cache"
	"github.com/solwatch/tradewatch/shared/models"
)

// StorageKey is the persistent cache key holding the serialized templates.
const StorageKey = "wallet_templates"

// Template is one saved configuration preset.
type Template struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Config      models.WalletConfig `json:"config"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Store holds templates in memory, mirrors them to the persistent cache, and
// notifies registered observers on every change.
type Store struct {
	mu        sync.Mutex
	templates []Template
	store     *cache.Store
	logger    *logrus.Entry

	listeners map[int]func([]Template)
	nextSub   int
	seq       int
}

// NewStore loads any persisted templates and returns a ready store. A
// corrupted cache entry is discarded rather than failing startup.
func NewStore(store *cache.Store, logger *logrus.Logger) *Store {
	s := &Store{
		store:     store,
		logger:    logger.WithField("component", "templates"),
		listeners: make(map[int]func([]Template)),
	}

	if store != nil {
		var saved []Template
		found, err := store.Get(StorageKey, &saved)
		switch {
		case err != nil:
			s.logger.Warnf("Discarding invalid template cache: %v", err)
			if delErr := store.Delete(StorageKey); delErr != nil {
				s.logger.Warnf("Failed to discard template cache: %v", delErr)
			}
		case found:
			s.templates = saved
		}
	}
	return s
}

// List returns a copy of all templates.
func (s *Store) List() []Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Create saves a new preset and notifies observers.
func (s *Store) Create(name, description string, cfg models.WalletConfig) (Template, error) {
	if name == "" {
		return Template{}, fmt.Errorf("template name is required")
	}

	s.mu.Lock()
	s.seq++
	tpl := Template{
		ID:          fmt.Sprintf("template_%d_%d", time.Now().UnixMilli(), s.seq),
		Name:        name,
		Description: description,
		Config:      cfg,
		CreatedAt:   time.Now().UTC(),
	}
	s.templates = append(s.templates, tpl)
	snapshot := s.copyLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return tpl, nil
}

// Delete removes a preset by id and notifies observers. Deleting an unknown
// id is an error so the UI can tell the user.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := -1
	for i, tpl := range s.templates {
		if tpl.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("template %q not found", id)
	}
	s.templates = append(s.templates[:idx], s.templates[idx+1:]...)
	snapshot := s.copyLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Subscribe registers an observer called with a snapshot after every change.
func (s *Store) Subscribe(fn func([]Template)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return id
}

// Unsubscribe removes an observer.
func (s *Store) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

func (s *Store) copyLocked() []Template {
	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

func (s *Store) persistLocked() {
	if s.store == nil {
		return
	}
	if err := s.store.Put(StorageKey, s.templates); err != nil {
		s.logger.Warnf("Failed to persist templates: %v", err)
	}
}

func (s *Store) notify(snapshot []Template) {
	s.mu.Lock()
	fns := make([]func([]Template), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
