package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/model"
)

var userColumns = []string{"id", "email", "provider", "pwd_hash", "salt_auth", "created_at"}

type userRow struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Provider  string    `db:"provider"`
	PwdHash   []byte    `db:"pwd_hash"`
	SaltAuth  []byte    `db:"salt_auth"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) model() *model.User {
	return &model.User{
		ID:        r.ID,
		Email:     r.Email,
		Provider:  r.Provider,
		PwdHash:   r.PwdHash,
		SaltAuth:  r.SaltAuth,
		CreatedAt: r.CreatedAt,
	}
}

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row and fills CreatedAt.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	provider := u.Provider
	if provider == "" {
		provider = model.ProviderEmail
	}
	q, args, err := psql.Insert("users").
		Columns("id", "email", "provider", "pwd_hash", "salt_auth").
		Values(u.ID, strings.TrimSpace(u.Email), provider, nonNil(u.PwdHash), nonNil(u.SaltAuth)).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return err
	}
	if err := r.db.Pool.QueryRow(ctx, q, args...).Scan(&u.CreatedAt); err != nil {
		return mapError(err)
	}
	u.Provider = provider
	return nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	q, args, err := psql.Select(userColumns...).From("users").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, args)
}

// GetByEmail selects a user by email, ignoring case.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	q, args, err := psql.Select(userColumns...).From("users").
		Where("lower(email) = lower(?)", strings.TrimSpace(email)).ToSql()
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, args)
}

func (r *UserRepo) get(ctx context.Context, q string, args []any) (*model.User, error) {
	var row userRow
	if err := pgxscan.Get(ctx, r.db.Pool, &row, q, args...); err != nil {
		return nil, mapError(err)
	}
	return row.model(), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
