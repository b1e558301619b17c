package datastores

import (
	"context"
	"errors"
)

type (
	ContactID = int64
	Contact   struct {
		ID          ContactID
		FirstName   string
		LastName    string
		PhoneNumber string
		Address     *string // nil means unset
	}
)

// ContactsStore persists contacts. Update and delete look records up by
// their current phone number, never by ID.
type ContactsStore interface {
	// Create assigns c.ID and stores c.
	Create(context.Context, *Contact) (ContactID, error)
	// List returns at most length contacts in creation order, skipping offset.
	List(ctx context.Context, offset, length int) ([]*Contact, error)
	// Search returns the contacts whose first or last name contains q,
	// ignoring case, in creation order.
	Search(ctx context.Context, q string) ([]*Contact, error)
	GetByPhone(ctx context.Context, phone string) (*Contact, error)
	// UpdateByPhone replaces every field but the ID of the contact found by phone.
	UpdateByPhone(ctx context.Context, phone string, c *Contact) (*Contact, error)
	DeleteByPhone(ctx context.Context, phone string) error
	Ping(context.Context) error
	Close()
}

var (
	ErrObjectNotFound = errors.New("store: object not found")
	ErrDuplicatePhone = errors.New("store: phone number already exists")
	ErrIntegrity      = errors.New("store: integrity constraint violated")
)

func (c *Contact) clone() *Contact {
	cc := *c
	if c.Address != nil {
		address := *c.Address
		cc.Address = &address
	}
	return &cc
}
