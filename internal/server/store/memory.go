package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
)

// Memory is a Store held in process memory. All reads are consistent.
type Memory struct {
	mu       sync.RWMutex
	domains  map[string]map[string]Attributes
	pageSize int
}

// NewMemory returns an empty store paging at DefaultPageSize.
func NewMemory() *Memory {
	return &Memory{domains: map[string]map[string]Attributes{}, pageSize: DefaultPageSize}
}

// WithPageSize overrides the page size; used by tests to exercise paging.
func (m *Memory) WithPageSize(n int) *Memory {
	if n > 0 {
		m.pageSize = n
	}
	return m
}

func (m *Memory) CreateDomain(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[name]; !ok {
		m.domains[name] = map[string]Attributes{}
	}
	return nil
}

func (m *Memory) ListDomains(_ context.Context, nextToken string) ([]string, string, error) {
	m.mu.RLock()
	names := slices.Sorted(maps.Keys(m.domains))
	m.mu.RUnlock()

	page, next := pageAfter(names, nextToken, m.pageSize)
	return page, next, nil
}

func (m *Memory) PutAttributes(_ context.Context, domain, item string, attrs Attributes, replace bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.domains[domain]
	if !ok {
		return ErrNoSuchDomain
	}
	cur, ok := d[item]
	if !ok {
		cur = Attributes{}
		d[item] = cur
	}
	for k, v := range attrs {
		if _, exists := cur[k]; exists && !replace {
			continue
		}
		cur[k] = v
	}
	return nil
}

func (m *Memory) GetAttributes(_ context.Context, domain, item string, _ bool) (Attributes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.domains[domain]
	if !ok {
		return nil, ErrNoSuchDomain
	}
	out := Attributes{}
	maps.Copy(out, d[item])
	return out, nil
}

func (m *Memory) DeleteAttributes(_ context.Context, domain, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.domains[domain]
	if !ok {
		return ErrNoSuchDomain
	}
	delete(d, item)
	return nil
}

func (m *Memory) Select(_ context.Context, domain string, filter Filter, nextToken string) (*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.domains[domain]
	if !ok {
		return nil, ErrNoSuchDomain
	}

	var matched []string
	for name, attrs := range d {
		if filter.Matches(attrs) {
			matched = append(matched, name)
		}
	}
	sort.Strings(matched)

	names, next := pageAfter(matched, nextToken, m.pageSize)
	page := &Page{Items: make([]Item, 0, len(names)), NextToken: next}
	for _, n := range names {
		attrs := Attributes{}
		maps.Copy(attrs, d[n])
		page.Items = append(page.Items, Item{Name: n, Attributes: attrs})
	}
	return page, nil
}

// pageAfter returns up to size entries of the sorted slice strictly after
// token, and the token for the following page.
func pageAfter(sorted []string, token string, size int) ([]string, string) {
	start := 0
	if token != "" {
		start = sort.SearchStrings(sorted, token)
		if start < len(sorted) && sorted[start] == token {
			start++
		}
	}
	end := min(start+size, len(sorted))
	page := sorted[start:end]
	if end < len(sorted) && len(page) > 0 {
		return page, page[len(page)-1]
	}
	return page, ""
}
