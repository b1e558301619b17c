// Package seed populates a contacts store with generated contacts.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/oaiiae/contactbook/datastores"
)

const DefaultCount = 100

// ErrNotPersistent is returned by [Run] without a database to seed: an
// in-memory store would be dropped as soon as the command exits.
var ErrNotPersistent = errors.New("seed: no database url, the in-memory store does not outlive the command")

var (
	firstNames = []string{"Charlie", "Lucy", "Linus", "Sally", "Peppermint", "Marcie", "Franklin", "Schroeder", "Violet", "Rerun"}
	lastNames  = []string{"Brown", "Van Pelt", "Patty", "Johnson", "Smith", "Reichardt", "Gray", "Duck", "Jones", "Miller"}
	streets    = []string{"Maple St", "Oak Ave", "Pine St", "Elm Rd", "Cedar Ln"}
)

// Command returns the seed subcommand, running run once flags are parsed.
func Command(run func(cmd *cobra.Command, args []string)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the contacts store with generated contacts",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	cmd.Flags().IntP("count", "n", DefaultCount, "number of contacts to generate")
	return cmd
}

// Count returns the --count flag of a command built by [Command].
func Count(cmd *cobra.Command) int {
	n, err := cmd.Flags().GetInt("count")
	if err != nil {
		return DefaultCount
	}
	return n
}

// Generate returns a random contact. Phone numbers have ten digits and about
// half of the contacts have an address.
func Generate(r *rand.Rand) *datastores.Contact {
	c := &datastores.Contact{
		FirstName:   firstNames[r.IntN(len(firstNames))],
		LastName:    lastNames[r.IntN(len(lastNames))],
		PhoneNumber: strconv.FormatInt(1_000_000_000+r.Int64N(9_000_000_000), 10),
	}
	if r.IntN(2) == 0 {
		address := fmt.Sprintf("%d %s", 1+r.IntN(999), streets[r.IntN(len(streets))])
		c.Address = &address
	}
	return c
}

// Contacts creates count generated contacts in store and returns how many
// were created. Failed inserts do not stop the run, they are all returned.
func Contacts(ctx context.Context, store datastores.ContactsStore, count int, r *rand.Rand) (int, error) {
	var errs *multierror.Error
	created := 0
	for range count {
		if err := ctx.Err(); err != nil {
			return created, multierror.Append(errs, err).ErrorOrNil()
		}
		c := Generate(r)
		if _, err := store.Create(ctx, c); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("seed %s: %w", c.PhoneNumber, err))
			continue
		}
		created++
	}
	return created, errs.ErrorOrNil()
}

// Run opens the store at databaseURL with open and seeds it with count
// contacts.
func Run(
	ctx context.Context,
	databaseURL string,
	count int,
	open func(context.Context) (datastores.ContactsStore, error),
	logger *slog.Logger,
) error {
	if databaseURL == "" {
		return ErrNotPersistent
	}
	store, err := open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := Contacts(ctx, store, count, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))) //nolint: gosec // not for security
	logger.LogAttrs(ctx, slog.LevelInfo, "seeded contacts", slog.Int("created", n), slog.Int("requested", count))
	if err != nil {
		return fmt.Errorf("seed: %d of %d contacts not created: %w", count-n, count, err)
	}
	return nil
}
