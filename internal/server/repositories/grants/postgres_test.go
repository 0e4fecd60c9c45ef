package grants

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGrant_Upsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	q := regexp.MustCompile(`INSERT INTO access_control .* ON CONFLICT \(record_id, grantee_id\)\s+DO UPDATE SET`)
	mock.ExpectExec(q.String()).
		WithArgs("rec-1", "bob", "read", "alice", true, &expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Grant(context.Background(), &models.AccessGrant{
		RecordID:       "rec-1",
		GranteeID:      "bob",
		PermissionType: "read",
		GrantedBy:      "alice",
		IsActive:       true,
		ExpiresAt:      &expires,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrant_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO access_control`)
	mock.ExpectExec(q.String()).WillReturnError(errors.New("db is down"))

	err := repo.Grant(context.Background(), &models.AccessGrant{RecordID: "rec-1", GranteeID: "bob"})
	if err == nil || !regexp.MustCompile(`grant upsert: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE access_control SET is_active = FALSE WHERE record_id = \$1 AND grantee_id = \$2;`)
	mock.ExpectExec(q.String()).
		WithArgs("rec-1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Revoke(context.Background(), "rec-1", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRevoke_MissingGrantIsNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE access_control SET is_active = FALSE`)
	mock.ExpectExec(q.String()).
		WithArgs("rec-1", "nobody").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "rec-1", "nobody"); err != nil {
		t.Fatalf("revoking an absent grant must not error, got %v", err)
	}
}

func TestGet_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	q := regexp.MustCompile(`SELECT record_id, grantee_id, permission_type, granted_by, is_active, expires_at, created_at\s+FROM access_control`)
	mock.ExpectQuery(q.String()).
		WithArgs("rec-1", "bob").
		WillReturnRows(sqlmock.NewRows([]string{
			"record_id", "grantee_id", "permission_type", "granted_by", "is_active", "expires_at", "created_at",
		}).AddRow("rec-1", "bob", "read", "alice", true, nil, created))

	got, err := repo.Get(context.Background(), "rec-1", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GranteeID != "bob" || !got.IsActive || got.ExpiresAt != nil {
		t.Fatalf("unexpected grant: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT record_id, grantee_id`)
	mock.ExpectQuery(q.String()).WithArgs("rec-1", "nobody").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "rec-1", "nobody")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestEffective(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		grant models.AccessGrant
		want  bool
	}{
		{"active without expiry", models.AccessGrant{IsActive: true}, true},
		{"active unexpired", models.AccessGrant{IsActive: true, ExpiresAt: &future}, true},
		{"active expired", models.AccessGrant{IsActive: true, ExpiresAt: &past}, false},
		{"revoked", models.AccessGrant{IsActive: false, ExpiresAt: &future}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.grant.Effective(now); got != tt.want {
				t.Fatalf("Effective() = %v, want %v", got, tt.want)
			}
		})
	}
}
