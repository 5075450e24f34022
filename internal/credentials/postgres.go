package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PgRepository is a Postgres-backed Repository, grounded on the
// teacher's internal/database query shape: plain database/sql calls
// with RETURNING clauses, no ORM.
type PgRepository struct {
	conn *sql.DB
}

func NewPgRepository(dsn string) (*PgRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PgRepository{conn: db}, nil
}

func (r *PgRepository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

const uniqueViolation = "23505"

func (r *PgRepository) CreateUser(email, username, passwordHash string) (User, error) {
	row := r.conn.QueryRow(
		"INSERT INTO accounts (email, username, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, email, username, password_hash, created_at",
		email, username, passwordHash, time.Now().UTC(),
	)

	var u User
	err := row.Scan(&u.Id, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return User{}, &duplicateKeyError{constraint: pqErr.Constraint}
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return u, nil
}

func (r *PgRepository) GetUserByEmail(email string) (User, error) {
	row := r.conn.QueryRow(
		"SELECT id, email, username, password_hash, created_at FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(&u.Id, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}

	return u, nil
}

func (r *PgRepository) GetUserById(id int) (User, error) {
	row := r.conn.QueryRow(
		"SELECT id, email, username, password_hash, created_at FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(&u.Id, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}

	return u, nil
}

// duplicateKeyError lets Store distinguish a unique-constraint
// violation from any other database failure without Store needing to
// know about lib/pq's error shape.
type duplicateKeyError struct {
	constraint string
}

func (e *duplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %s", e.constraint)
}

func isDuplicateKey(err error) bool {
	var dupErr *duplicateKeyError
	return errors.As(err, &dupErr)
}
