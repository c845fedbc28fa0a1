package services

import (
	"context"

	"nodetree/internal/domain/models"
)

// TreeService enforces the tree invariants (single root, no cycles) on top of a NodeRepository
type TreeService interface {
	// AddNode creates a node under parentID; a nil parentID creates the root,
	// which fails with a DuplicateRootError once any node exists.
	AddNode(ctx context.Context, parentID *string) (*models.NodeInfo, error)

	// GetNode returns the NodeInfo of a single node
	GetNode(ctx context.Context, id string) (*models.NodeInfo, error)

	// GetRoot returns the NodeInfo of the root
	GetRoot(ctx context.Context) (*models.NodeInfo, error)

	// GetDescendants lists every node below id, breadth first, siblings in insertion order
	GetDescendants(ctx context.Context, id string) ([]models.NodeInfo, error)

	// SetParent moves nodeID (and its subtree) under parentID
	SetParent(ctx context.Context, nodeID, parentID string) (*models.NodeInfo, error)

	// CountNodes returns the number of stored nodes
	CountNodes(ctx context.Context) (int, error)

	// Verify walks the whole tree and reports invariant violations
	Verify(ctx context.Context) (*models.TreeReport, error)
}
