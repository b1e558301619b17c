package seed

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaiiae/contactbook/datastores"
)

func TestGenerate(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	withAddress := 0
	for range 200 {
		c := Generate(r)
		assert.NotEmpty(t, c.FirstName)
		assert.NotEmpty(t, c.LastName)
		assert.Len(t, c.PhoneNumber, 10)
		if c.Address != nil {
			withAddress++
		}
	}
	assert.Positive(t, withAddress)
	assert.Less(t, withAddress, 200)
}

func TestContacts(t *testing.T) {
	store := datastores.NewContactsInmem()
	n, err := Contacts(context.Background(), store, 25, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	all, err := store.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 25)
}

type rejecting struct{ *datastores.ContactsInmem }

func (rejecting) Create(context.Context, *datastores.Contact) (datastores.ContactID, error) {
	return 0, datastores.ErrDuplicatePhone
}

func TestContactsAggregatesFailures(t *testing.T) {
	n, err := Contacts(context.Background(), rejecting{datastores.NewContactsInmem()}, 3, rand.New(rand.NewPCG(5, 6)))
	assert.Zero(t, n)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	assert.ErrorIs(t, err, datastores.ErrDuplicatePhone)
}

func TestContactsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Contacts(ctx, datastores.NewContactsInmem(), 10, rand.New(rand.NewPCG(7, 8)))
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCommand(t *testing.T) {
	for args, want := range map[string]int{"": DefaultCount, "--count=3": 3, "-n=7": 7} {
		t.Run(args, func(t *testing.T) {
			got := 0
			cmd := Command(func(cmd *cobra.Command, _ []string) { got = Count(cmd) })
			if args != "" {
				cmd.SetArgs([]string{args})
			} else {
				cmd.SetArgs([]string{})
			}
			require.NoError(t, cmd.Execute())
			assert.Equal(t, want, got)
		})
	}
}

func TestRunRefusesInMemoryStore(t *testing.T) {
	opened := false
	err := Run(context.Background(), "", 10, func(context.Context) (datastores.ContactsStore, error) {
		opened = true
		return datastores.NewContactsInmem(), nil
	}, slog.New(slog.DiscardHandler))

	require.ErrorIs(t, err, ErrNotPersistent)
	assert.False(t, opened)
}

func TestRun(t *testing.T) {
	store := datastores.NewContactsInmem()
	var logs bytes.Buffer
	err := Run(context.Background(), "postgres://db/contacts", 4, func(context.Context) (datastores.ContactsStore, error) {
		return store, nil
	}, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	all, err := store.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Contains(t, logs.String(), "created=4 requested=4")
}

func TestRunReportsFailures(t *testing.T) {
	err := Run(context.Background(), "postgres://db/contacts", 2, func(context.Context) (datastores.ContactsStore, error) {
		return rejecting{datastores.NewContactsInmem()}, nil
	}, slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, datastores.ErrDuplicatePhone)
	assert.ErrorContains(t, err, "2 of 2 contacts not created")

	boom := errors.New("connection refused")
	err = Run(context.Background(), "postgres://db/contacts", 2, func(context.Context) (datastores.ContactsStore, error) {
		return nil, boom
	}, slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, boom)
}
