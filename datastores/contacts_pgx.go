package datastores

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"
)

// ContactsPgx implements [ContactsStore] on PostgreSQL.
type ContactsPgx struct {
	pool *pgxpool.Pool
}

var _ ContactsStore = (*ContactsPgx)(nil)

const contactsSchema = `CREATE TABLE IF NOT EXISTS contacts (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	first_name   TEXT NOT NULL,
	last_name    TEXT NOT NULL,
	phone_number VARCHAR(10) NOT NULL UNIQUE,
	address      TEXT
)`

const contactColumns = `id, first_name, last_name, phone_number, address`

// NewContactsPgx connects to the database at url and creates the contacts
// table when it does not exist yet.
func NewContactsPgx(ctx context.Context, url string) (*ContactsPgx, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{Name: "contacts"}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if _, err = pool.Exec(ctx, contactsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: create contacts table: %w", err)
	}
	return &ContactsPgx{pool: pool}, nil
}

func (s *ContactsPgx) Create(ctx context.Context, c *Contact) (ContactID, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO contacts (first_name, last_name, phone_number, address) VALUES ($1, $2, $3, $4) RETURNING id`,
			c.FirstName, c.LastName, c.PhoneNumber, c.Address,
		).Scan(&c.ID)
	})
	if err != nil {
		return 0, classify(err)
	}
	return c.ID, nil
}

func (s *ContactsPgx) List(ctx context.Context, offset, length int) ([]*Contact, error) {
	return s.query(ctx,
		`SELECT `+contactColumns+` FROM contacts ORDER BY id LIMIT $1 OFFSET $2`,
		max(length, 0), max(offset, 0),
	)
}

func (s *ContactsPgx) Search(ctx context.Context, q string) ([]*Contact, error) {
	return s.query(ctx,
		`SELECT `+contactColumns+` FROM contacts
		WHERE strpos(lower(first_name), lower($1)) > 0 OR strpos(lower(last_name), lower($1)) > 0
		ORDER BY id`,
		q,
	)
}

func (s *ContactsPgx) GetByPhone(ctx context.Context, phone string) (*Contact, error) {
	cs, err := s.query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE phone_number = $1`, phone)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, ErrObjectNotFound
	}
	return cs[0], nil
}

func (s *ContactsPgx) UpdateByPhone(ctx context.Context, phone string, c *Contact) (*Contact, error) {
	var updated *Contact
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`UPDATE contacts SET first_name = $1, last_name = $2, phone_number = $3, address = $4
			WHERE phone_number = $5 RETURNING `+contactColumns,
			c.FirstName, c.LastName, c.PhoneNumber, c.Address, phone,
		)
		if err != nil {
			return err
		}
		updated, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[Contact])
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

func (s *ContactsPgx) DeleteByPhone(ctx context.Context, phone string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM contacts WHERE phone_number = $1`, phone)
		if err != nil {
			return classify(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrObjectNotFound
		}
		return nil
	})
}

func (s *ContactsPgx) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *ContactsPgx) Close() { s.pool.Close() }

func (s *ContactsPgx) query(ctx context.Context, sql string, args ...any) ([]*Contact, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query contacts: %w", err)
	}
	cs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Contact])
	if err != nil {
		return nil, fmt.Errorf("store: scan contacts: %w", err)
	}
	return cs, nil
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrObjectNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicatePhone, pgErr.ConstraintName)
		case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
			return fmt.Errorf("%w: %s", ErrIntegrity, pgErr.Message)
		}
	}
	return err
}
