//go:build integration

// Package testinfra starts throwaway Postgres and Redis containers for the
// integration tests.
package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"clubcheckin/internal/store"
)

// mutable lists the tables Reset clears, children first.
var mutable = []string{
	"certificates",
	"attendance",
	"registrations",
	"club_members",
	"students",
	"mentors",
	"events",
	"clubs",
}

// Postgres boots Postgres 16, applies the migrations and returns the
// connected DB. The container is terminated when t finishes.
func Postgres(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("club"),
		tcpostgres.WithUsername("club"),
		tcpostgres.WithPassword("club"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("resolve connection string: %v", err)
	}

	db, err := store.NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// Reset truncates every table so each test starts clean.
func Reset(t *testing.T, db *store.DB) {
	t.Helper()
	for _, tbl := range mutable {
		if _, err := db.Client.ExecContext(context.Background(), "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", tbl, err)
		}
	}
}

// Redis boots Redis 7 and returns a connected client.
func Redis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	addr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		t.Fatalf("parse redis URL: %v", err)
	}
	opts.DialTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	return client
}

// Seed inserts a club, an event and registrations keyed by id. Each
// registration gets roll number = its id upper-cased.
func Seed(t *testing.T, db *store.DB, clubID, eventID string, registrationIDs ...string) {
	t.Helper()
	ctx := context.Background()
	exec := func(q string, args ...any) {
		if _, err := db.Client.ExecContext(ctx, q, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	exec(`INSERT INTO clubs (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, clubID, clubID+" club")
	exec(`INSERT INTO events (id, club_id, title, starts_at) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		eventID, clubID, "Event "+eventID, time.Now().UTC())
	for i, id := range registrationIDs {
		exec(`INSERT INTO registrations (id, event_id, student_name, email, roll_number, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, eventID, "Student "+id, id+"@college.edu", id, time.Now().UTC().Add(time.Duration(i)*time.Second))
	}
}
