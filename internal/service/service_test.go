package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
	"github.com/sakif/support-desk/internal/repository/sqlite"
)

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore returns a fresh in-memory database. The service tests run
// against real SQL so transaction behaviour is exercised too.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func seedChallenge(t *testing.T, db *sqlite.DB, publicID string, points int64, tags ...string) *model.Challenge {
	t.Helper()
	in := &repository.ChallengeImport{
		Challenge: model.Challenge{PublicID: publicID, Title: "Challenge " + publicID, Points: ptr(points)},
		Tags:      tags,
	}
	require.NoError(t, db.UpsertChallenge(context.Background(), in))
	return &in.Challenge
}

func seedUser(t *testing.T, db *sqlite.DB, u model.User) *model.User {
	t.Helper()
	require.NoError(t, db.CreateUser(context.Background(), &u))
	return &u
}
