// Package repotest holds the conformance suite every NodeRepository backend runs.
package repotest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/repositories"
)

// Factory returns a fresh, empty repository for one subtest
type Factory func(t *testing.T) repositories.NodeRepository

// Run executes the full conformance suite against repositories built by newRepo
func Run(t *testing.T, newRepo Factory) {
	t.Run("AddRootAndChildren", func(t *testing.T) { testAddRootAndChildren(t, newRepo(t)) })
	t.Run("AddUnknownParent", func(t *testing.T) { testAddUnknownParent(t, newRepo(t)) })
	t.Run("AddNodeCopiesParentID", func(t *testing.T) { testAddNodeCopiesParentID(t, newRepo(t)) })
	t.Run("GetUnknownNode", func(t *testing.T) { testGetUnknownNode(t, newRepo(t)) })
	t.Run("GetRoot", func(t *testing.T) { testGetRoot(t, newRepo(t)) })
	t.Run("SetParentMovesSubtree", func(t *testing.T) { testSetParentMovesSubtree(t, newRepo(t)) })
	t.Run("SetParentSameParentIsNoop", func(t *testing.T) { testSetParentSameParent(t, newRepo(t)) })
	t.Run("SetParentErrors", func(t *testing.T) { testSetParentErrors(t, newRepo(t)) })
	t.Run("ConcurrentSetParent", func(t *testing.T) { testConcurrentSetParent(t, newRepo(t)) })
}

func testAddRootAndChildren(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()

	count, err := repo.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, root.ID)
	assert.Nil(t, root.ParentID)
	assert.Empty(t, root.Children)

	a, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)
	require.NotNil(t, a.ParentID)
	assert.Equal(t, root.ID, *a.ParentID)

	b, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)
	c, err := repo.AddNode(ctx, &a.ID)
	require.NoError(t, err)

	gotRoot, err := repo.GetNode(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, gotRoot.Children, "children kept in insertion order")

	gotA, err := repo.GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, gotA.Children)

	count, err = repo.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	AssertConsistent(t, repo)
}

func testAddNodeCopiesParentID(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)

	parentID := root.ID
	child, err := repo.AddNode(ctx, &parentID)
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.NotSame(t, &parentID, child.ParentID, "returned node must not share the caller's pointer")

	parentID = "changed-by-caller"
	assert.Equal(t, root.ID, *child.ParentID)
}

func testAddUnknownParent(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()
	_, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)

	missing := "00000000-0000-0000-0000-000000000000"
	_, err = repo.AddNode(ctx, &missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := repo.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "failed add must not persist anything")
}

func testGetUnknownNode(t *testing.T, repo repositories.NodeRepository) {
	_, err := repo.GetNode(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testGetRoot(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()

	_, err := repo.GetRoot(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	_, err = repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)

	got, err := repo.GetRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)
}

func testSetParentMovesSubtree(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	c1, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)
	c2, err := repo.AddNode(ctx, &c1.ID)
	require.NoError(t, err)
	c3, err := repo.AddNode(ctx, &c2.ID)
	require.NoError(t, err)

	moved, err := repo.SetParent(ctx, c2.ID, root.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, root.ID, *moved.ParentID)
	assert.Equal(t, []string{c3.ID}, moved.Children, "subtree travels with the node")

	gotRoot, err := repo.GetNode(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c1.ID, c2.ID}, gotRoot.Children)

	gotC1, err := repo.GetNode(ctx, c1.ID)
	require.NoError(t, err)
	assert.Empty(t, gotC1.Children)

	AssertConsistent(t, repo)
}

func testSetParentSameParent(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	a, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)
	b, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)

	_, err = repo.SetParent(ctx, a.ID, root.ID)
	require.NoError(t, err)

	gotRoot, err := repo.GetNode(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, gotRoot.Children)
}

func testSetParentErrors(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()
	missing := "00000000-0000-0000-0000-000000000000"

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	child, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)

	_, err = repo.SetParent(ctx, missing, root.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.SetParent(ctx, child.ID, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.SetParent(ctx, root.ID, child.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStructure)

	AssertConsistent(t, repo)
}

// testConcurrentSetParent shuffles leaves between two parents from many
// goroutines; the children lists must still mirror the parent pointers.
func testConcurrentSetParent(t *testing.T, repo repositories.NodeRepository) {
	ctx := context.Background()

	root, err := repo.AddNode(ctx, nil)
	require.NoError(t, err)
	left, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)
	right, err := repo.AddNode(ctx, &root.ID)
	require.NoError(t, err)

	var leaves []string
	for i := 0; i < 6; i++ {
		leaf, err := repo.AddNode(ctx, &left.ID)
		require.NoError(t, err)
		leaves = append(leaves, leaf.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(leaves)*4)
	for round := 0; round < 4; round++ {
		target := left.ID
		if round%2 == 0 {
			target = right.ID
		}
		for _, id := range leaves {
			wg.Add(1)
			go func(id, target string) {
				defer wg.Done()
				if _, err := repo.SetParent(ctx, id, target); err != nil {
					errs <- err
				}
			}(id, target)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		// Optimistic backends may surface a write conflict; anything else is a bug
		assert.NotErrorIs(t, err, domain.ErrNotFound)
		assert.NotErrorIs(t, err, domain.ErrInvalidStructure)
	}

	AssertConsistent(t, repo)
}

// AssertConsistent walks the tree from the root and checks that every child
// points back at its parent and that every stored node is reachable.
func AssertConsistent(t *testing.T, repo repositories.NodeRepository) {
	t.Helper()
	ctx := context.Background()

	count, err := repo.GetNodeCount(ctx)
	require.NoError(t, err)
	if count == 0 {
		return
	}

	root, err := repo.GetRoot(ctx)
	require.NoError(t, err)
	require.Nil(t, root.ParentID, "root must have no parent")

	seen := map[string]bool{root.ID: true}
	queue := []*models.Node{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, childID := range node.Children {
			require.False(t, seen[childID], "node %s reached twice", childID)
			seen[childID] = true

			child, err := repo.GetNode(ctx, childID)
			require.NoError(t, err)
			require.NotNil(t, child.ParentID, "child %s of %s has no parent", childID, node.ID)
			assert.Equal(t, node.ID, *child.ParentID, "child %s lists wrong parent", childID)
			queue = append(queue, child)
		}
	}

	assert.Equal(t, count, len(seen), "every node must be reachable from the root")
}
