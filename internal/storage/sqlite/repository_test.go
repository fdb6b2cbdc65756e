package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/storage"
	"github.com/social-scheduler/internal/storage/storagetest"
)

func TestRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		repo, err := New(filepath.Join(t.TempDir(), "data", "scheduler.db"))
		require.NoError(t, err)
		require.NoError(t, repo.Migrate())
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}
