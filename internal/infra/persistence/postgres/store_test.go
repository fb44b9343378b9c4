package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"shelterhub/internal/infra/persistence/memory"
	"shelterhub/pkg/domain"
)

func newMockStore(t *testing.T, rows *sqlmock.Rows) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	for _, stmt := range schemaStatements {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery(selectStateSQL).WillReturnRows(rows)

	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, mock
}

func TestNewStoreAppliesSchemaAndLoadsSnapshot(t *testing.T) {
	rows := sqlmock.NewRows([]string{"bucket", "payload"}).
		AddRow("cats", []byte(`{"cat-1":{"id":"cat-1","name":"Tom","status":"sheltered","intake_number":4}}`)).
		AddRow("unknown", []byte(`{}`))
	store, mock := newMockStore(t, rows)

	state := store.ExportState()
	if len(state.Cats) != 1 {
		t.Fatalf("expected one cat loaded, got %d", len(state.Cats))
	}
	if state.IntakeSequence != 4 {
		t.Fatalf("expected intake sequence derived from cats, got %d", state.IntakeSequence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSchemaDeclaresConstraints(t *testing.T) {
	joined := strings.Join(schemaStatements, "\n")
	for _, want := range []string{
		"CHECK (capacity > 0)",
		"CHECK (amount_cents > 0)",
		"REFERENCES wards(id)",
		"REFERENCES cats(id)",
		"intake_number BIGINT NOT NULL UNIQUE",
		"payload JSONB NOT NULL",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}

func TestRunInTransactionPersistsStateAndMirror(t *testing.T) {
	store, mock := newMockStore(t, sqlmock.NewRows([]string{"bucket", "payload"}))

	insertWard := mirrorRows(domain.Snapshot{Wards: map[string]domain.Ward{"w": {}}})[0].query
	mock.ExpectBegin()
	for range memory.BucketNames {
		mock.ExpectExec(upsertStateSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	for i := len(mirrorTables) - 1; i >= 0; i-- {
		mock.ExpectExec("DELETE FROM " + mirrorTables[i]).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(insertWard).
		WithArgs(sqlmock.AnyArg(), "Cattery", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateWard(domain.Ward{Name: "Cattery"})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPersistFailureKeepsPreviousState(t *testing.T) {
	cases := map[string]func(mock sqlmock.Sqlmock){
		"begin": func(mock sqlmock.Sqlmock) {
			mock.ExpectBegin().WillReturnError(errors.New("db down"))
		},
		"upsert": func(mock sqlmock.Sqlmock) {
			mock.ExpectBegin()
			mock.ExpectExec(upsertStateSQL).WillReturnError(errors.New("disk full"))
			mock.ExpectRollback()
		},
	}
	for name, expect := range cases {
		t.Run(name, func(t *testing.T) {
			store, mock := newMockStore(t, sqlmock.NewRows([]string{"bucket", "payload"}))
			expect(mock)

			_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.CreateTeam(domain.Team{Name: "Vets"})
				return err
			})
			if err == nil || !strings.Contains(err.Error(), name) {
				t.Fatalf("expected %s error, got %v", name, err)
			}
			if got := len(store.ExportState().Teams); got != 0 {
				t.Fatalf("failed persist must not change live state, got %d teams", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestNewStoreSurfacesSchemaErrors(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	mock.ExpectExec(schemaStatements[0]).WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	if _, err := NewStore(context.Background(), "postgres://example", nil); err == nil {
		t.Fatalf("expected schema error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewStoreSurfacesOpenErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("bad dsn") })
	defer restore()
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
}
