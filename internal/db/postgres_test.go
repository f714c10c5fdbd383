package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestOpen_EmptyDSN(t *testing.T) {
	pool, err := Open(context.Background(), "", time.Second)
	if err == nil {
		pool.Close()
		t.Fatal("Open with empty DSN should return error")
	}
	if pool != nil {
		t.Error("Open should return nil pool on error")
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "postgres://user@host:notaport/db"} {
		pool, err := Open(context.Background(), dsn, time.Second)
		if err == nil {
			pool.Close()
			t.Errorf("Open(%q) should fail", dsn)
		}
	}
}

func TestConstraintViolated(t *testing.T) {
	unique := &pgconn.PgError{Code: UniqueViolation, ConstraintName: "identities_email_key"}
	name, ok := ConstraintViolated(fmt.Errorf("insert: %w", unique))
	if !ok || name != "identities_email_key" {
		t.Errorf("ConstraintViolated = (%q, %v), want identities_email_key", name, ok)
	}
	if _, ok := ConstraintViolated(&pgconn.PgError{Code: "23503"}); ok {
		t.Error("foreign key violation should not report unique")
	}
	if _, ok := ConstraintViolated(errors.New("boom")); ok {
		t.Error("plain error should not report unique")
	}
}
