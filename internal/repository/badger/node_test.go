package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodetree/internal/domain/repositories"
	"nodetree/internal/repository/repotest"
)

// TestNodeRepository_Conformance runs the shared suite on in-memory badger.
func TestNodeRepository_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repositories.NodeRepository {
		db, err := Open(InMemoryConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewNodeRepository(db)
	})
}

// TestNodeRepository_Persists verifies the tree survives a reopen.
func TestNodeRepository_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	db, err := Open(cfg)
	require.NoError(t, err)
	repo := NewNodeRepository(db)

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	child, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	repo = NewNodeRepository(db)

	count, err := repo.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	gotRoot, err := repo.GetRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, root.ID, gotRoot.ID)
	assert.Equal(t, []string{child.ID}, gotRoot.Children)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_GCRunnerStops(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncWrites = false

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NotNil(t, db.stopGC)
	require.NoError(t, db.Close())
}
