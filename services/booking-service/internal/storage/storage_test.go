package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: "reservations_no_overlap"}, model.ErrOverlap},
		{"serialization", &pgconn.PgError{Code: "40001"}, model.ErrTransientStorage},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, model.ErrTransientStorage},
		{"connection failure", &pgconn.PgError{Code: "08006"}, model.ErrTransientStorage},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, model.ErrTransientStorage},
		{"wrapped exclusion", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"}), model.ErrOverlap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	for _, err := range []error{
		&pgconn.PgError{Code: "23505"},
		errors.New("boom"),
		context.Canceled,
		pgx.ErrNoRows,
	} {
		got := classify(err)
		if errors.Is(got, model.ErrTransientStorage) || errors.Is(got, model.ErrOverlap) {
			t.Fatalf("%v should not be classified, got %v", err, got)
		}
	}
	if classify(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestMigrationsDeclareExclusionConstraint(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("no embedded migrations: %v", err)
	}
	body, err := migrations.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(body)
	for _, want := range []string{
		"btree_gist",
		"EXCLUDE USING gist",
		"tstzrange(start_time, end_time, '[)')",
		"WHERE (status IN ('pending', 'confirmed'))",
		"booking_idempotency_keys",
		"outbox_events",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

func TestTTLSecondsDefaults(t *testing.T) {
	if got := ttlSeconds(0); got != 86400 {
		t.Fatalf("expected one day default, got %v", got)
	}
}
