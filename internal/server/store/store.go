// Package store defines the identity store contract used by the user and
// device directories: named domains holding items, each item a flat map of
// attribute name to value.
//
// Backends live in sub-packages (pgstore, s3store); Memory in this package
// serves tests and single-process deployments.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophtvm/internal/common"
)

// DefaultPageSize bounds ListDomains and Select pages.
const DefaultPageSize = 100

// Attributes is the attribute set of a single item.
type Attributes map[string]string

// Item is one row returned by Select.
type Item struct {
	Name       string
	Attributes Attributes
}

// Filter restricts Select to items whose Attribute equals Value.
// A zero Filter matches every item.
type Filter struct {
	Attribute string
	Value     string
}

// Matches reports whether attrs satisfy the filter.
func (f Filter) Matches(attrs Attributes) bool {
	if f.Attribute == "" {
		return true
	}
	v, ok := attrs[f.Attribute]
	return ok && v == f.Value
}

// Page is one slice of a Select result. An empty NextToken means the scan
// is complete.
type Page struct {
	Items     []Item
	NextToken string
}

// Store is the identity store client.
//
// GetAttributes returns an empty, non-nil map for a missing item. With
// replace=false PutAttributes leaves attributes that already exist on the
// item untouched and only adds new ones. The consistent flag requests a
// read that observes every completed write; backends that are always
// consistent may ignore it.
type Store interface {
	CreateDomain(ctx context.Context, name string) error
	ListDomains(ctx context.Context, nextToken string) ([]string, string, error)
	PutAttributes(ctx context.Context, domain, item string, attrs Attributes, replace bool) error
	GetAttributes(ctx context.Context, domain, item string, consistent bool) (Attributes, error)
	DeleteAttributes(ctx context.Context, domain, item string) error
	Select(ctx context.Context, domain string, filter Filter, nextToken string) (*Page, error)
}

// ErrNoSuchDomain is returned for operations against a domain that was
// never created.
var ErrNoSuchDomain = fmt.Errorf("no such domain: %w", common.ErrorNotFound)

// EnsureDomain creates name unless ListDomains already reports it.
func EnsureDomain(ctx context.Context, s Store, name string) error {
	next := ""
	for {
		names, token, err := s.ListDomains(ctx, next)
		if err != nil {
			return fmt.Errorf("list domains: %w", err)
		}
		for _, n := range names {
			if n == name {
				return nil
			}
		}
		if token == "" {
			break
		}
		next = token
	}
	if err := s.CreateDomain(ctx, name); err != nil {
		return fmt.Errorf("create domain %s: %w", name, err)
	}
	return nil
}

// ItemNames drains every page of a filtered Select and returns the names.
func ItemNames(ctx context.Context, s Store, domain string, filter Filter) ([]string, error) {
	var names []string
	err := each(ctx, s, domain, filter, func(it Item) bool {
		names = append(names, it.Name)
		return true
	})
	return names, err
}

// CountItems counts the items in domain matching filter.
func CountItems(ctx context.Context, s Store, domain string, filter Filter) (int, error) {
	n := 0
	err := each(ctx, s, domain, filter, func(Item) bool {
		n++
		return true
	})
	return n, err
}

// FindFirst returns the first item matching filter, or common.ErrorNotFound.
func FindFirst(ctx context.Context, s Store, domain string, filter Filter) (Item, error) {
	var found *Item
	err := each(ctx, s, domain, filter, func(it Item) bool {
		found = &it
		return false
	})
	if err != nil {
		return Item{}, err
	}
	if found == nil {
		return Item{}, common.ErrorNotFound
	}
	return *found, nil
}

var errTokenLoop = errors.New("continuation token did not advance")

func each(ctx context.Context, s Store, domain string, filter Filter, fn func(Item) bool) error {
	next := ""
	for {
		page, err := s.Select(ctx, domain, filter, next)
		if err != nil {
			return err
		}
		for _, it := range page.Items {
			if !fn(it) {
				return nil
			}
		}
		if page.NextToken == "" {
			return nil
		}
		if page.NextToken == next {
			return fmt.Errorf("select %s: %w", domain, errTokenLoop)
		}
		next = page.NextToken
	}
}
