package testhelpers

import (
	"sort"
	"sync"
	"time"

	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/persistence"
)

// MemoryEntryStore is an in-memory persistence.EntryStorage for tests. It
// mirrors the repository's behaviour: Create rejects duplicate (url, username)
// pairs and persists only url, username and status; Get and Delete return
// persistence.ErrEntryNotFound for missing ids; the Mark methods update
// matching rows without checking that the id exists.
type MemoryEntryStore struct {
	mu      sync.Mutex
	seq     int64
	entries map[int64]*model.Entry
}

func NewMemoryEntryStore() *MemoryEntryStore {
	return &MemoryEntryStore{entries: make(map[int64]*model.Entry)}
}

func (s *MemoryEntryStore) Create(entry *model.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.URL == entry.URL && e.Username == entry.Username {
			return 0, persistence.ErrDuplicateEntry
		}
	}
	status := entry.Status
	if status == "" {
		status = model.StatusPending
	}
	s.seq++
	now := time.Now()
	s.entries[s.seq] = &model.Entry{
		ID:        s.seq,
		URL:       entry.URL,
		Username:  entry.Username,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.seq, nil
}

func (s *MemoryEntryStore) GetByID(id int64) (*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, persistence.ErrEntryNotFound
	}
	out := *e
	return &out, nil
}

func (s *MemoryEntryStore) GetByURLAndUsername(url, username string) (*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.URL == url && e.Username == username {
			out := *e
			return &out, nil
		}
	}
	return nil, persistence.ErrEntryNotFound
}

func (s *MemoryEntryStore) List(statusIn []model.EntryStatus) ([]*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[model.EntryStatus]bool, len(statusIn))
	for _, st := range statusIn {
		wanted[st] = true
	}
	out := make([]*model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if len(wanted) == 0 || wanted[e.Status] {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryEntryStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return persistence.ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryEntryStore) MarkInProgress(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Status = model.StatusInProgress
		e.ErrorMessage = nil
		e.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryEntryStore) MarkDone(id int64, privacyURL *string, emails []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Status = model.StatusDone
		e.PrivacyURL = privacyURL
		e.ScrapedEmails = emails
		e.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryEntryStore) MarkNoResults(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Status = model.StatusNoResults
		e.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryEntryStore) MarkError(id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Status = model.StatusError
		e.ErrorMessage = &message
		e.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryEntryStore) Progress() (*model.ScrapeProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress := &model.ScrapeProgress{Total: len(s.entries)}
	for _, e := range s.entries {
		switch e.Status {
		case model.StatusPending:
			progress.Pending++
		case model.StatusInProgress:
			progress.InProgress++
		case model.StatusDone:
			progress.Done++
		case model.StatusNoResults:
			progress.NoResults++
		case model.StatusError:
			progress.Error++
		}
	}
	return progress, nil
}
