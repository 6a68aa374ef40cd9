package services_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"trade-market/internal/models"
	"trade-market/internal/repositories"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type plainRenderer struct{}

func (plainRenderer) Render(text string) string { return "<p>" + text + "</p>" }

func newBadgerStore(t *testing.T, userIDs ...int64) *repositories.BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	store, err := repositories.NewBadgerStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = db.Close()
	})
	for _, id := range userIDs {
		_, err := store.UpsertUser(context.Background(), models.User{ID: id, Name: fmt.Sprintf("user-%d", id), Email: fmt.Sprintf("u%d@example.com", id)})
		require.NoError(t, err)
	}
	return store
}
