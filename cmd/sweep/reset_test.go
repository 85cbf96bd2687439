package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factkit/sweep/internal/config"
	"github.com/factkit/sweep/internal/factstore"
	"github.com/factkit/sweep/internal/progress"
)

// swapGlobals points the command globals at an in-memory store for the
// duration of one test.
func swapGlobals(t *testing.T) {
	t.Helper()

	testStore, err := factstore.Open(":memory:")
	require.NoError(t, err)

	origStore, origOpts, origLogger := store, opts, logger
	store = testStore
	opts = &config.Options{Source: "github"}
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() {
		_ = testStore.Close()
		store, opts, logger = origStore, origOpts, origLogger
	})
}

func TestResetRequiresRepoFlag(t *testing.T) {
	swapGlobals(t)

	resetCmd.Flags().Set("label", "foo")
	defer resetCmd.Flags().Set("label", "")

	err := resetCmd.RunE(resetCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--repo is required")
}

func TestResetAcceptsRepositoryZero(t *testing.T) {
	swapGlobals(t)

	require.NoError(t, resetCmd.Flags().Set("label", "foo"))
	require.NoError(t, resetCmd.Flags().Set("repo", "0"))
	require.NoError(t, resetCmd.Flags().Set("value", "17"))
	defer func() {
		resetCmd.Flags().Set("label", "")
		resetRepo, resetValue = 0, 0
		resetCmd.Flags().Lookup("repo").Changed = false
		resetCmd.Flags().Lookup("value").Changed = false
	}()

	require.NoError(t, resetCmd.RunE(resetCmd, nil))

	ps := progress.New(store, opts.Source, logger)
	got, err := ps.Read(context.Background(), "foo", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(17), got)
}
