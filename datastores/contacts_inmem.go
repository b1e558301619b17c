package datastores

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// ContactsInmem implements [ContactsStore].
type ContactsInmem struct {
	mu       sync.Mutex
	lastID   ContactID
	index    map[string]int // phone number to position in contacts
	contacts []*Contact
}

var _ ContactsStore = (*ContactsInmem)(nil)

func NewContactsInmem(cs ...*Contact) *ContactsInmem {
	s := &ContactsInmem{index: make(map[string]int, len(cs))}
	for _, c := range cs {
		_, _ = s.Create(context.Background(), c)
	}
	return s
}

func (s *ContactsInmem) Create(_ context.Context, c *Contact) (ContactID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, loaded := s.index[c.PhoneNumber]; loaded {
		return 0, ErrDuplicatePhone
	}
	s.lastID++
	c.ID = s.lastID
	s.index[c.PhoneNumber] = len(s.contacts)
	s.contacts = append(s.contacts, c.clone())
	return c.ID, nil
}

func (s *ContactsInmem) List(_ context.Context, offset, length int) ([]*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset, length = max(offset, 0), max(length, 0)
	return cloneAll(s.contacts[min(offset, len(s.contacts)):min(offset+length, len(s.contacts))]), nil
}

func (s *ContactsInmem) Search(_ context.Context, q string) ([]*Contact, error) {
	q = strings.ToLower(q)
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*Contact
	for _, c := range s.contacts {
		if strings.Contains(strings.ToLower(c.FirstName), q) || strings.Contains(strings.ToLower(c.LastName), q) {
			found = append(found, c.clone())
		}
	}
	return found, nil
}

func (s *ContactsInmem) GetByPhone(_ context.Context, phone string) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[phone]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return s.contacts[i].clone(), nil
}

func (s *ContactsInmem) UpdateByPhone(_ context.Context, phone string, c *Contact) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[phone]
	if !ok {
		return nil, ErrObjectNotFound
	}
	if j, taken := s.index[c.PhoneNumber]; taken && j != i {
		return nil, ErrDuplicatePhone
	}
	updated := c.clone()
	updated.ID = s.contacts[i].ID
	delete(s.index, phone)
	s.index[updated.PhoneNumber] = i
	s.contacts[i] = updated
	return updated.clone(), nil
}

func (s *ContactsInmem) DeleteByPhone(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[phone]
	if !ok {
		return ErrObjectNotFound
	}
	delete(s.index, phone)
	s.contacts = slices.Delete(s.contacts, i, i+1)
	for j := i; j < len(s.contacts); j++ {
		s.index[s.contacts[j].PhoneNumber] = j
	}
	return nil
}

func (s *ContactsInmem) Ping(context.Context) error { return nil }

func (s *ContactsInmem) Close() {}

func cloneAll(cs []*Contact) []*Contact {
	out := make([]*Contact, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.clone())
	}
	return out
}
