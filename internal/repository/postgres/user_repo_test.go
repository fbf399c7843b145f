package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return &DB{Pool: mock}, mock
}

var userCols = []string{"id", "email", "provider", "pwd_hash", "salt_auth", "created_at"}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now()
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    " ann@example.com ",
		PwdHash:  []byte("h"),
		SaltAuth: []byte("s"),
	}

	mock.ExpectQuery(`INSERT INTO users \(id,email,provider,pwd_hash,salt_auth\) VALUES \(\$1,\$2,\$3,\$4,\$5\) RETURNING created_at`).
		WithArgs(u.ID, "ann@example.com", model.ProviderEmail, u.PwdHash, u.SaltAuth).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	require.NoError(t, r.Create(ctx, u))
	require.Equal(t, now, u.CreatedAt)
	require.Equal(t, model.ProviderEmail, u.Provider)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(u.ID, "ann@example.com", model.ProviderEmail, u.PwdHash, u.SaltAuth).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	err := r.Create(ctx, u)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestUserRepo_Create_OAuthAccountStoresEmptyHash(t *testing.T) {
	db, mock := newDB(t)
	r := NewUserRepo(db)
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "g@example.com", Provider: model.ProviderGoogle}

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(u.ID, "g@example.com", model.ProviderGoogle, []byte{}, []byte{}).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	require.NoError(t, r.Create(context.Background(), u))
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT id, email, provider, pwd_hash, salt_auth, created_at FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "ann@example.com", "email", []byte("h"), []byte("s"), now))
	u, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, "ann@example.com", u.Email)
	require.Equal(t, []byte("h"), u.PwdHash)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols))
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT .* FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("Ann@Example.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "ann@example.com", "google", []byte{}, []byte{}, time.Now()))
	u, err := r.GetByEmail(ctx, " Ann@Example.com")
	require.NoError(t, err)
	require.Equal(t, model.ProviderGoogle, u.Provider)

	mock.ExpectQuery(`SELECT .* FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("nobody@example.com").
		WillReturnRows(pgxmock.NewRows(userCols))
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
