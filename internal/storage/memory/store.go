// Package memory is an in-process implementation of the product and order
// repositories for tests. It gives the same atomicity guarantees as the
// Postgres repositories, so the service, HTTP, seed and concurrency tests
// run against it without a database.
//
// Lock order: an order entry, then product entries in ascending id order,
// then the orders map. Placement never takes an order entry. The map
// mutexes are held only for lookups and inserts, never while waiting on an
// entry lock.
package memory

import (
	"sort"
	"sync"
	"time"

	"storefront/internal/order"
	"storefront/internal/product"
)

type productEntry struct {
	mu      sync.Mutex
	p       *product.Product
	deleted bool
}

type orderEntry struct {
	mu sync.Mutex
	o  *order.Order
}

type Store struct {
	productsMu sync.RWMutex
	products   map[string]*productEntry

	ordersMu sync.RWMutex
	orders   map[string]*orderEntry
	byNumber map[string]string

	hookMu     sync.Mutex
	insertHook func(o *order.Order) error

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]*productEntry),
		orders:   make(map[string]*orderEntry),
		byNumber: make(map[string]string),
		now:      time.Now,
	}
}

// OnOrderInsert installs a hook that runs right before an order record is
// stored. A non-nil error aborts the insert and the placement is rolled back.
func (s *Store) OnOrderInsert(hook func(o *order.Order) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.insertHook = hook
}

func (s *Store) Products() *ProductRepository {
	return &ProductRepository{s: s}
}

func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{s: s}
}

func (s *Store) productEntry(id string) (*productEntry, bool) {
	s.productsMu.RLock()
	defer s.productsMu.RUnlock()
	e, ok := s.products[id]
	return e, ok
}

func (s *Store) productEntries() []*productEntry {
	s.productsMu.RLock()
	defer s.productsMu.RUnlock()
	out := make([]*productEntry, 0, len(s.products))
	for _, e := range s.products {
		out = append(out, e)
	}
	return out
}

func (s *Store) orderEntry(id string) (*orderEntry, bool) {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	e, ok := s.orders[id]
	return e, ok
}

func (s *Store) orderEntries() []*orderEntry {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	out := make([]*orderEntry, 0, len(s.orders))
	for _, e := range s.orders {
		out = append(out, e)
	}
	return out
}

// lockProducts locks the entries for ids in ascending id order and returns
// them keyed by id together with the matching unlock function. Unknown ids
// are absent from the map.
func (s *Store) lockProducts(ids []string) (map[string]*productEntry, func()) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	locked := make(map[string]*productEntry, len(unique))
	held := make([]*productEntry, 0, len(unique))
	for _, id := range unique {
		e, ok := s.productEntry(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.deleted {
			e.mu.Unlock()
			continue
		}
		locked[id] = e
		held = append(held, e)
	}

	return locked, func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
	}
}
