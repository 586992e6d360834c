package userinfra

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/user"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

func newRepo(t *testing.T) (*PostgresUserRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewPostgresUserRepository(sqlx.NewDb(raw, "postgres")), mock
}

func TestCreateMapsSecondRoot(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), user.User{ID: "u-2", TenantID: "t-1", Username: "root", IsRoot: true})
	assert.True(t, errx.IsCode(err, user.CodeUserAlreadyExists))
}

var cols = []string{"id", "tenant_id", "username", "email", "password_hash", "role", "is_root", "must_change_password", "created_at", "updated_at"}

func TestFindRoot(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery("FROM users WHERE tenant_id = \\$1 AND is_root").WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "t-1", "root", "ops@acme.test", "hash", "root", true, true, now, now))
	u, err := repo.FindRoot(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, u.MustChangePassword)

	mock.ExpectQuery("FROM users").WithArgs("t-2").WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.FindRoot(context.Background(), "t-2")
	assert.True(t, errx.IsCode(err, user.CodeUserNotFound))
}

func TestListIsTenantScopedAndPaged(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE tenant_id = \\$1").WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("WHERE tenant_id = \\$1\\s+ORDER BY username\\s+LIMIT \\$2 OFFSET \\$3").
		WithArgs("t-1", 2, 2).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-3", "t-1", "zoe", "zoe@acme.test", "hash", "member", false, false, now, now))

	users, total, err := repo.List(context.Background(), "t-1", kernel.PaginationOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 1)
	assert.Equal(t, "zoe", users[0].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}
