package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodetree/internal/domain"
	"nodetree/internal/domain/repositories"
	"nodetree/internal/repository/repotest"
)

func TestNodeRepository_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repositories.NodeRepository {
		repo, err := NewNodeRepository(filepath.Join(t.TempDir(), "tree.json"))
		require.NoError(t, err)
		return repo
	})
}

// TestNodeRepository_SharedFile verifies two handles on one file see each other's writes.
func TestNodeRepository_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tree.json")
	ctx := context.Background()

	first, err := NewNodeRepository(path)
	require.NoError(t, err)
	second, err := NewNodeRepository(path)
	require.NoError(t, err)

	root, err := first.AddNode(ctx, nil)
	require.NoError(t, err)

	child, err := second.AddNode(ctx, &root.ID)
	require.NoError(t, err)

	gotRoot, err := first.GetNode(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, gotRoot.Children)
}

func TestNodeRepository_FailedWriteLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	ctx := context.Background()

	repo, err := NewNodeRepository(path)
	require.NoError(t, err)
	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = repo.SetParent(ctx, root.ID, root.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStructure)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNodeRepository_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	ctx := context.Background()

	repo, err := NewNodeRepository(path)
	require.NoError(t, err)
	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Metadata struct {
			Version string `json:"version"`
		} `json:"metadata"`
		RootID string            `json:"root_id"`
		Nodes  []json.RawMessage `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, formatVersion, doc.Metadata.Version)
	assert.Equal(t, root.ID, doc.RootID)
	assert.Len(t, doc.Nodes, 1)
}

func TestNodeRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	repo, err := NewNodeRepository(path)
	require.NoError(t, err)

	_, err = repo.GetNodeCount(context.Background())
	assert.Error(t, err)
}
