package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	migrationTable = "schema_migrations"
	// check_violation
	pgCheckViolation = "23514"
)

// Postgres is a UserStore backed by a users table.
type Postgres struct {
	db *sql.DB
}

var _ UserStore = (*Postgres)(nil)

// OpenPostgres connects with the pgx driver, verifies the connection and
// applies pending migrations.
func OpenPostgres(ctx context.Context, url string, L log.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, xerrors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, "ping database")
	}

	if err := Migrate(ctx, db, L); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an already-migrated database.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// gooseLogger forwards goose output to the application logger.
type gooseLogger struct {
	ctx context.Context
	L   log.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.L.Info(g.ctx, fmt.Sprintf(format, v...), "component", "migrate")
}

// Fatalf does not exit; the error is returned by goose to Migrate.
func (g gooseLogger) Fatalf(format string, v ...any) {
	g.L.Error(g.ctx, fmt.Errorf(format, v...), "migration failed", "component", "migrate")
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, L log.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetTableName(migrationTable)
	goose.SetLogger(gooseLogger{ctx: ctx, L: L})
	if err := goose.SetDialect("postgres"); err != nil {
		return xerrors.Wrap(err, "goose dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return xerrors.Wrap(err, "apply migrations")
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) List(ctx context.Context) ([]User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, age, email FROM users ORDER BY id`)
	if err != nil {
		return nil, xerrors.Wrap(err, "list users")
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, "list users")
	}
	return users, nil
}

func (p *Postgres) Get(ctx context.Context, id int64) (User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, name, age, email FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, xerrors.Wrapf(ErrUserNotFound, "id %d", id)
	}
	return u, err
}

func (p *Postgres) Create(ctx context.Context, in NewUser) (User, error) {
	in, err := prepare(in)
	if err != nil {
		return User{}, err
	}

	var id int64
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO users (name, age, email) VALUES ($1, $2, $3) RETURNING id`,
		in.Name, in.Age, in.Email,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return User{}, xerrors.Wrap(ErrInvalidUser, pgErr.ConstraintName)
		}
		return User{}, xerrors.Wrap(err, "insert user")
	}
	return User{ID: id, Name: in.Name, Age: intPtr(in.Age), Email: in.Email}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (User, error) {
	var (
		u     User
		age   sql.NullInt32
		email sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Name, &age, &email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, xerrors.Wrap(err, "scan user")
	}
	if age.Valid {
		u.Age = intPtr(int(age.Int32))
	}
	u.Email = email.String
	return u, nil
}
