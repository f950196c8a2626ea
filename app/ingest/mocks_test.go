package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"newsdesk/app/database"
	"newsdesk/app/policy"
)

// memItemRepo is an in-memory ItemRepository backed by a url-keyed map.
type memItemRepo struct {
	mu    sync.Mutex
	items map[string]*database.Item
	types map[string]string // source id -> source type

	failUpsert    bool
	failCountOnce bool
	nextID        int
	clock         func() time.Time
}

func newMemItemRepo() *memItemRepo {
	return &memItemRepo{
		items: make(map[string]*database.Item),
		types: make(map[string]string),
		clock: time.Now,
	}
}

func (m *memItemRepo) Upsert(ctx context.Context, item *database.Item, refreshCreatedAt bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpsert {
		return false, fmt.Errorf("upsert failed")
	}

	if existing, ok := m.items[item.URL]; ok {
		existing.Title = item.Title
		existing.Summary = item.Summary
		existing.Score = item.Score
		if refreshCreatedAt {
			existing.CreatedAt = m.clock()
		}
		return false, nil
	}

	m.nextID++
	stored := *item
	stored.ID = fmt.Sprintf("item-%d", m.nextID)
	stored.CreatedAt = m.clock()
	m.items[item.URL] = &stored
	return true, nil
}

func (m *memItemRepo) window(item *database.Item, windowField string) time.Time {
	if windowField == policy.WindowFieldCreated {
		return item.CreatedAt
	}
	return item.PublishedAt
}

func (m *memItemRepo) matchesType(item *database.Item, sourceType string) bool {
	return sourceType == "" || m.types[item.SourceID] == sourceType
}

func (m *memItemRepo) CountSince(ctx context.Context, section, windowField string, since time.Time, sourceType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCountOnce {
		m.failCountOnce = false
		return 0, fmt.Errorf("count failed")
	}

	count := 0
	for _, item := range m.items {
		if item.Section == section && !m.window(item, windowField).Before(since) && m.matchesType(item, sourceType) {
			count++
		}
	}
	return count, nil
}

func (m *memItemRepo) RecentURLs(ctx context.Context, section string, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var urls []string
	for _, item := range m.items {
		if item.Section == section && !item.CreatedAt.Before(since) {
			urls = append(urls, item.URL)
		}
	}
	return urls, nil
}

func (m *memItemRepo) RecentSourceIDs(ctx context.Context, section string, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, item := range m.items {
		if item.Section == section && !item.CreatedAt.Before(since) {
			if _, dup := seen[item.SourceID]; !dup {
				seen[item.SourceID] = struct{}{}
				ids = append(ids, item.SourceID)
			}
		}
	}
	return ids, nil
}

func (m *memItemRepo) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[string]bool)
	for _, u := range urls {
		if _, ok := m.items[u]; ok {
			existing[u] = true
		}
	}
	return existing, nil
}

func (m *memItemRepo) PruneWindow(ctx context.Context, section, windowField string, since time.Time, keep int, sourceType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inWindow []*database.Item
	for _, item := range m.items {
		if item.Section == section && !m.window(item, windowField).Before(since) && m.matchesType(item, sourceType) {
			inWindow = append(inWindow, item)
		}
	}
	if len(inWindow) <= keep {
		return 0, nil
	}

	// Rank by (score desc, created_at desc), delete the rest.
	for i := 0; i < len(inWindow); i++ {
		for j := i + 1; j < len(inWindow); j++ {
			a, b := inWindow[i], inWindow[j]
			if b.Score > a.Score || (b.Score == a.Score && b.CreatedAt.After(a.CreatedAt)) {
				inWindow[i], inWindow[j] = b, a
			}
		}
	}

	var deleted int64
	for _, item := range inWindow[keep:] {
		delete(m.items, item.URL)
		deleted++
	}
	return deleted, nil
}

func (m *memItemRepo) DeleteStale(ctx context.Context, section, windowField string, before time.Time, sourceType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for url, item := range m.items {
		if item.Section == section && m.window(item, windowField).Before(before) && m.matchesType(item, sourceType) {
			delete(m.items, url)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memItemRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for url, item := range m.items {
		if item.CreatedAt.Before(before) {
			delete(m.items, url)
			deleted++
		}
	}
	return deleted, nil
}

// memSourceRepo is an in-memory SourceRepository.
type memSourceRepo struct {
	mu      sync.Mutex
	sources map[string]*database.Source // keyed by url

	failList bool
	nextID   int
}

func newMemSourceRepo() *memSourceRepo {
	return &memSourceRepo{sources: make(map[string]*database.Source)}
}

func (m *memSourceRepo) add(src database.Source) *database.Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	src.ID = fmt.Sprintf("src-%d", m.nextID)
	if src.Type == "" {
		src.Type = database.SourceTypeRSS
	}
	stored := src
	m.sources[src.URL] = &stored
	return &stored
}

func (m *memSourceRepo) ListEnabled(ctx context.Context, sourceType string) ([]database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failList {
		return nil, fmt.Errorf("registry unavailable")
	}

	var out []database.Source
	for _, src := range m.sources {
		if src.Enabled && src.Type == sourceType {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (m *memSourceRepo) GetByURL(ctx context.Context, url string) (*database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[url]
	if !ok {
		return nil, nil
	}
	copied := *src
	return &copied, nil
}

func (m *memSourceRepo) Upsert(ctx context.Context, src *database.Source) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sources[src.URL]; ok {
		return existing.ID, nil
	}
	m.nextID++
	src.ID = fmt.Sprintf("src-%d", m.nextID)
	stored := *src
	m.sources[src.URL] = &stored
	return src.ID, nil
}

func (m *memSourceRepo) byID(id string) *database.Source {
	for _, src := range m.sources {
		if src.ID == id {
			return src
		}
	}
	return nil
}

func (m *memSourceRepo) MarkAttempt(ctx context.Context, id string, ok bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.byID(id)
	if src == nil {
		return 0, fmt.Errorf("source %s not found", id)
	}

	now := time.Now()
	src.LastFetchedAt = &now
	if ok {
		src.ConsecutiveFails = 0
		src.LastOkAt = &now
	} else {
		src.ConsecutiveFails++
	}
	return src.ConsecutiveFails, nil
}

func (m *memSourceRepo) SetEnabled(ctx context.Context, id string, enabled, autoDisabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.byID(id)
	if src == nil {
		return fmt.Errorf("source %s not found", id)
	}
	src.Enabled = enabled
	src.AutoDisabled = autoDisabled
	return nil
}

func (m *memSourceRepo) ReEnableAutoDisabled(ctx context.Context, notAttemptedSince time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, src := range m.sources {
		if src.AutoDisabled && (src.LastFetchedAt == nil || src.LastFetchedAt.Before(notAttemptedSince)) {
			src.Enabled = true
			src.AutoDisabled = false
			src.ConsecutiveFails = 0
			n++
		}
	}
	return n, nil
}

// memRunRepo records run lifecycle calls.
type memRunRepo struct {
	mu       sync.Mutex
	created  []string
	finished []finishedRun
}

type finishedRun struct {
	id      string
	ok      bool
	added   int
	skipped int
	message string
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{}
}

func (m *memRunRepo) Create(ctx context.Context, kind string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("run-%d", len(m.created)+1)
	m.created = append(m.created, kind)
	return id, nil
}

func (m *memRunRepo) Finish(ctx context.Context, id string, ok bool, added, skipped int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = append(m.finished, finishedRun{id: id, ok: ok, added: added, skipped: skipped, message: message})
	return nil
}
