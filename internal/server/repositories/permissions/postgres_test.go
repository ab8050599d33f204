package permissions

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	qInsert = `(?s)^INSERT\s+INTO\s+user_x_objects\s*\(user_id,\s*object_id,\s*can_read,\s*can_edit,\s*can_delete\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+created_at$`
	qGet    = `(?s)^SELECT\s+user_id,\s*object_id,\s*can_read,\s*can_edit,\s*can_delete,\s*created_at,\s*updated_at\s+FROM\s+user_x_objects\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+object_id\s*=\s*\$2$`
	qDelete = `(?s)^DELETE\s+FROM\s+user_x_objects\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+object_id\s*=\s*\$2$`
	qList   = `(?s)^SELECT\s+u\.id,\s*u\.email,.*FROM\s+user_x_objects\s+p\s+JOIN\s+users\s+u\s+ON\s+u\.id\s*=\s*p\.user_id\s+WHERE\s+p\.object_id\s*=\s*\$1\s+ORDER\s+BY\s+p\.created_at$`
)

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(qInsert).
		WithArgs("u-1", "obj-1", true, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	p := &models.Permission{UserID: "u-1", ObjectID: "obj-1", Capabilities: models.Capabilities{Read: true}}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, now, p.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.Permission{UserID: "u-1", ObjectID: "obj-1"})
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Permission{UserID: "u-1", ObjectID: "obj-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
	assert.False(t, errors.Is(err, common.ErrAlreadyExists))
}

func TestGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"user_id", "object_id", "can_read", "can_edit", "can_delete", "created_at", "updated_at"}).
			AddRow("u-1", "obj-1", true, true, false, time.Now(), nil)
		mock.ExpectQuery(qGet).WithArgs("u-1", "obj-1").WillReturnRows(rows)

		got, err := repo.Get(context.Background(), "u-1", "obj-1")
		require.NoError(t, err)
		assert.Equal(t, models.Capabilities{Read: true, Edit: true}, got.Capabilities)
		assert.Nil(t, got.UpdatedAt)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(qGet).WithArgs("u-1", "obj-1").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "u-1", "obj-1")
		require.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name    string
		result  driver.Result
		execErr error
		wantIs  error
		wantErr bool
	}{
		{name: "deleted", result: sqlmock.NewResult(0, 1)},
		{name: "no grant", result: sqlmock.NewResult(0, 0), wantIs: common.ErrNotFound, wantErr: true},
		{name: "rows affected error", result: sqlmock.NewErrorResult(errors.New("ra")), wantErr: true},
		{name: "exec error", execErr: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			exp := mock.ExpectExec(qDelete).WithArgs("u-1", "obj-1")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err := repo.Delete(context.Background(), "u-1", "obj-1")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestListByObject(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	t0 := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "can_read", "can_edit", "can_delete", "created_at", "updated_at"}).
		AddRow("owner", "owner@example.com", true, true, true, t0, nil).
		AddRow("reader", "reader@example.com", true, false, false, t0.Add(time.Minute), t0.Add(time.Hour))
	mock.ExpectQuery(qList).WithArgs("obj-1").WillReturnRows(rows)

	got, err := repo.ListByObject(context.Background(), "obj-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "owner@example.com", got[0].Email)
	assert.Equal(t, models.OwnerCapabilities(), got[0].Capabilities)
	assert.Equal(t, "reader", got[1].UserID)
	require.NotNil(t, got[1].UpdatedAt)
}
