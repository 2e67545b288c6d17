package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"duebot/internal/storage"
	logx "duebot/pkg/logx"
)

// ErrNotExist is re-exported from storage for callers that only see store.
var ErrNotExist = storage.ErrNotExist

// ErrNoChange may be returned from an Update callback to skip the save.
var ErrNoChange = errors.New("store: no change")

type Store struct {
	p   storage.Provider
	log logx.Logger

	mu     sync.Mutex
	doc    *Document
	loaded bool
	// dirty is set while the in-memory document has changes the provider
	// has not accepted yet. Reloads are skipped until a save succeeds.
	dirty       bool
	lastHash    uint64 // of the bytes last read or written
	readFailing bool
}

func New(p storage.Provider, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{p: p, log: log.With(logx.String("comp", "store")), doc: NewDocument()}
}

// Load reads the document from the provider. A missing document is created
// empty; an unreadable one is set aside and replaced with an empty document.
// Storage failures are logged and never returned: the bot keeps running on
// the in-memory document and the next successful save persists it.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	b, err := s.p.Read(ctx)
	switch {
	case errors.Is(err, storage.ErrNotExist):
		s.doc = NewDocument()
		s.log.Info("no stored document; creating an empty one")
		s.persistLocked(ctx)
		return nil
	case err != nil:
		s.doc = NewDocument()
		s.log.Error("reading stored document failed; starting empty", logx.Err(err))
		return nil
	}

	doc, issues, err := Decode(b)
	if err != nil {
		s.log.Error("stored document is unreadable; starting empty", logx.Err(err))
		s.quarantineLocked(ctx)
		s.doc = NewDocument()
		s.persistLocked(ctx)
		return nil
	}
	for _, is := range issues {
		s.log.Warn("stored document repaired", logx.String("issue", is))
	}

	s.doc = doc
	s.lastHash = hashBytes(b)
	s.log.Debug("document loaded",
		logx.Int("assignments", len(doc.Assignments)),
		logx.Int("reminders", len(doc.Reminders)),
		logx.Int("users", len(doc.Users)),
	)
	return nil
}

// Reload picks up edits made to the stored document since the last read or
// write. Read and decode failures keep the in-memory document.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked(ctx)
}

func (s *Store) reloadLocked(ctx context.Context) {
	if !s.loaded || s.dirty {
		return
	}
	b, err := s.p.Read(ctx)
	switch {
	case errors.Is(err, storage.ErrNotExist):
		s.log.Debug("stored document missing; keeping memory")
		return
	case err != nil:
		if !s.readFailing {
			s.log.Warn("reloading stored document failed; keeping memory", logx.Err(err))
		}
		s.readFailing = true
		return
	}
	if s.readFailing {
		s.log.Info("stored document readable again")
		s.readFailing = false
	}
	h := hashBytes(b)
	if h == s.lastHash {
		return
	}

	doc, issues, err := Decode(b)
	if err != nil {
		s.log.Warn("stored document was edited into an unreadable state; keeping memory", logx.Err(err))
		s.quarantineLocked(ctx)
		s.lastHash = h
		return
	}
	for _, is := range issues {
		s.log.Warn("stored document repaired", logx.String("issue", is))
	}
	s.doc = doc
	s.lastHash = h
	s.log.Info("stored document changed on disk; reloaded",
		logx.Int("assignments", len(doc.Assignments)),
		logx.Int("reminders", len(doc.Reminders)),
	)
}

func (s *Store) quarantineLocked(ctx context.Context) {
	q, ok := s.p.(storage.Quarantiner)
	if !ok {
		return
	}
	if _, err := q.Quarantine(ctx); err != nil {
		s.log.Warn("quarantine failed", logx.Err(err))
	}
}

// persistLocked is saveLocked for callers that have no one to report to.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.saveLocked(ctx); err != nil {
		s.log.Warn("document kept in memory until the next successful save")
	}
}

// Save writes the current document. On failure the in-memory state is kept.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	b, err := Encode(s.doc)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	if err := s.p.Write(ctx, b); err != nil {
		s.dirty = true
		s.log.Error("save failed", logx.Err(err))
		return fmt.Errorf("store: write: %w", err)
	}
	s.dirty = false
	s.lastHash = hashBytes(b)
	return nil
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// View runs fn with read access to the document. fn must not retain d or
// any slice inside it after returning.
func (s *Store) View(fn func(d *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Update reloads the stored document if it changed on disk, applies fn to a
// copy, swaps it in and saves, all under the store lock. If fn returns an error nothing changes; ErrNoChange
// skips the save and Update returns nil. A failed save still keeps the new
// in-memory state and returns the write error.
func (s *Store) Update(ctx context.Context, fn func(d *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadLocked(ctx)
	next := s.doc.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	s.doc = next
	return s.saveLocked(ctx)
}

func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Store) Close() error {
	if s.p == nil {
		return nil
	}
	return s.p.Close()
}
