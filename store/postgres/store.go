// Package postgres implements mpauth.AccountStore on PostgreSQL through
// database/sql and the pgx stdlib driver. The schema is applied with goose
// from embedded migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/store/postgres/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// DBTX is the subset of *sql.DB and *sql.Tx the store needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a PostgreSQL-backed account store.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New wraps db.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db error: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

const selectColumns = `id, username, password_hash, nickname, avatar, tel, email, gender, birthday,
		login_attempts, lock_until, version, created_at, updated_at`

func scanAccount(row *sql.Row) (*mpauth.Account, error) {
	var (
		a         mpauth.Account
		birthday  sql.NullTime
		lockUntil sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Nickname, &a.Avatar, &a.Tel, &a.Email,
		&a.Gender, &birthday, &a.LoginAttempts, &lockUntil, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if birthday.Valid {
		t := birthday.Time
		a.Birthday = &t
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		a.LockUntil = &t
	}
	return &a, nil
}

func dbError(err error) error {
	return fmt.Errorf("%w: db error: %v", mpauth.ErrStoreUnavailable, err)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*mpauth.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts
		 WHERE username = $1`

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError(err)
	}
	return a, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*mpauth.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts
		 WHERE id = $1`

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError(err)
	}
	return a, nil
}

// Insert lets the database assign the id when account.ID is empty.
func (s *Store) Insert(ctx context.Context, account *mpauth.Account) (*mpauth.Account, error) {
	rec := account.Clone()
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Version == 0 {
		rec.Version = 1
	}

	var id any
	if rec.ID != "" {
		id = rec.ID
	}

	query :=
		`INSERT INTO accounts (id, username, password_hash, nickname, avatar, tel, email, gender, birthday,
		 login_attempts, lock_until, version, created_at, updated_at)
		 VALUES (COALESCE($1::text, gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		id, rec.Username, rec.PasswordHash, rec.Nickname, rec.Avatar, rec.Tel, rec.Email, rec.Gender,
		rec.Birthday, rec.LoginAttempts, rec.LockUntil, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, mpauth.ErrUsernameTaken
		}
		return nil, dbError(err)
	}
	return rec, nil
}

// AtomicUpdate is a single conditional UPDATE; zero affected rows means the
// version predicate failed.
func (s *Store) AtomicUpdate(ctx context.Context, id string, expectedVersion int64, upd mpauth.AccountUpdate) (*mpauth.Account, error) {
	query :=
		`UPDATE accounts SET
		 login_attempts = CASE WHEN $3::boolean THEN $4 ELSE login_attempts END,
		 lock_until = CASE WHEN $3::boolean THEN $5::timestamptz ELSE lock_until END,
		 password_hash = CASE WHEN $6::text <> '' THEN $6::text ELSE password_hash END,
		 updated_at = $7,
		 version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING ` + selectColumns

	a, err := scanAccount(s.db.QueryRowContext(ctx, query,
		id, expectedVersion, upd.SetLockout, upd.LoginAttempts, upd.LockUntil, upd.PasswordHash, upd.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError(err)
	}
	return a, nil
}
