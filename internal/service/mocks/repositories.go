package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/tinyurl/internal/models"
	"github.com/SergeiKhy/tinyurl/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link
	nextID int64
	err    error

	// InsertHook runs before every Insert; tests use it to simulate concurrent writers
	InsertHook func(link *models.Link)
	// FindHook runs after FindByCode took its snapshot, before it is returned
	FindHook func(link *models.Link)
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

// FailWith makes every subsequent call return err (nil restores normal behaviour)
func (m *MockLinkRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockLinkRepository) FindAll(ctx context.Context) ([]*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	links := make([]*models.Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, copyLink(link))
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ID > links[j].ID
		}
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (m *MockLinkRepository) FindByCode(ctx context.Context, code string) (*models.Link, error) {
	link, err := m.findByCode(code)
	if err == nil && m.FindHook != nil {
		m.FindHook(link)
	}
	return link, err
}

func (m *MockLinkRepository) findByCode(code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return copyLink(link), nil
}

func (m *MockLinkRepository) Insert(ctx context.Context, link *models.Link) error {
	if m.InsertHook != nil {
		m.InsertHook(link)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if _, exists := m.links[link.Code]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	link.Clicks = 0
	link.LastClicked = nil
	m.nextID++
	m.links[link.Code] = copyLink(link)
	return nil
}

func (m *MockLinkRepository) DeleteByCode(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if _, exists := m.links[code]; !exists {
		return repository.ErrLinkNotFound
	}
	delete(m.links, code)
	return nil
}

func (m *MockLinkRepository) Save(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	stored, exists := m.links[link.Code]
	if !exists {
		return repository.ErrLinkNotFound
	}
	stored.Clicks = link.Clicks
	stored.LastClicked = copyTime(link.LastClicked)
	return nil
}

func (m *MockLinkRepository) RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	stored, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	stored.Clicks++
	if stored.LastClicked == nil || at.After(*stored.LastClicked) {
		stored.LastClicked = &at
	}
	return copyLink(stored), nil
}

// Count returns the number of stored links
func (m *MockLinkRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}

// MockCacheRepository implements repository.CacheRepository for testing.
// It follows the Redis implementation: Lock hides a code until Commit/Tombstone/Unlock,
// and Fill never replaces a newer snapshot, a tombstone or a locked entry.
type MockCacheRepository struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	err     error
	failOn  map[string]error
}

type cacheEntry struct {
	link    *models.Link
	pending int
	deleted bool
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		entries: make(map[string]*cacheEntry),
		failOn:  make(map[string]error),
	}
}

// FailWith makes every subsequent call return err
func (m *MockCacheRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailOn makes only the named method ("Get", "Fill", "Lock", "Commit", "Tombstone", "Unlock") return err
func (m *MockCacheRepository) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[method] = err
}

// Expire drops the entry as if its TTL ran out
func (m *MockCacheRepository) Expire(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, code)
}

func (m *MockCacheRepository) fail(method string) error {
	if m.err != nil {
		return m.err
	}
	return m.failOn[method]
}

func (m *MockCacheRepository) entry(code string) *cacheEntry {
	e, exists := m.entries[code]
	if !exists {
		e = &cacheEntry{}
		m.entries[code] = e
	}
	return e
}

func (m *MockCacheRepository) Get(ctx context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Get"); err != nil {
		return nil, err
	}
	e, exists := m.entries[code]
	if !exists || e.link == nil || e.pending > 0 || e.deleted {
		return nil, repository.ErrCacheMiss
	}
	return copyLink(e.link), nil
}

func (m *MockCacheRepository) Fill(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Fill"); err != nil {
		return err
	}
	e := m.entry(link.Code)
	if e.deleted || e.pending > 0 || olderThan(link, e.link) {
		return nil
	}
	e.link = copyLink(link)
	return nil
}

func (m *MockCacheRepository) Lock(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Lock"); err != nil {
		return err
	}
	m.entry(code).pending++
	return nil
}

func (m *MockCacheRepository) Commit(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Commit"); err != nil {
		return err
	}
	e := m.release(link.Code)
	if !e.deleted && !olderThan(link, e.link) {
		e.link = copyLink(link)
	}
	return nil
}

func (m *MockCacheRepository) Tombstone(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Tombstone"); err != nil {
		return err
	}
	e := m.release(code)
	e.link = nil
	e.deleted = true
	return nil
}

func (m *MockCacheRepository) Unlock(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Unlock"); err != nil {
		return err
	}
	e := m.release(code)
	if e.pending == 0 && e.link == nil && !e.deleted {
		delete(m.entries, code)
	}
	return nil
}

func (m *MockCacheRepository) release(code string) *cacheEntry {
	e := m.entry(code)
	if e.pending > 0 {
		e.pending--
	}
	return e
}

// olderThan reports whether next is an older snapshot than cur
func olderThan(next, cur *models.Link) bool {
	if cur == nil {
		return false
	}
	return cur.ID > next.ID || (cur.ID == next.ID && cur.Clicks > next.Clicks)
}

func copyLink(link *models.Link) *models.Link {
	c := *link
	c.LastClicked = copyTime(link.LastClicked)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
