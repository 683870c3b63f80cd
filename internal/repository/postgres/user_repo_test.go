package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/model"
)

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{
		ID:      uuid.Must(uuid.NewV4()),
		Name:    "Jane",
		Email:   "jane@example.com",
		PwdHash: []byte("h"),
		Salt:    []byte("s"),
	}

	mock.ExpectExec(`INSERT INTO users \(id, name, email, pwd_hash, salt\)`).
		WithArgs(u.ID, u.Name, u.Email, u.PwdHash, u.Salt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	mock.ExpectExec(`INSERT INTO users \(id, name, email, pwd_hash, salt\)`).
		WithArgs(u.ID, u.Name, u.Email, u.PwdHash, u.Salt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, name, email, pwd_hash, salt, created_at FROM users WHERE email=\$1`).
		WithArgs("jane@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email", "pwd_hash", "salt", "created_at"}).
			AddRow(id, "Jane", "jane@example.com", []byte("h"), []byte("s"), time.Now()))
	u, err := r.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)

	mock.ExpectQuery(`SELECT id, name, email, pwd_hash, salt, created_at FROM users WHERE email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT id, name, email, pwd_hash, salt, created_at FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetByID(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
