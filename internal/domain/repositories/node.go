package repositories

import (
	"context"

	"nodetree/internal/domain/models"
)

// NodeRepository is the storage capability the tree service depends on.
// Implementations keep parent/children links consistent but do not enforce
// tree-wide invariants (single root, acyclicity).
type NodeRepository interface {
	// AddNode creates a node under parentID, or a parentless node when parentID is nil.
	// Returns a NotFoundError if parentID does not resolve.
	AddNode(ctx context.Context, parentID *string) (*models.Node, error)

	// GetNode retrieves a node by ID
	GetNode(ctx context.Context, id string) (*models.Node, error)

	// GetNodeCount returns the number of persisted nodes
	GetNodeCount(ctx context.Context) (int, error)

	// GetRoot returns the first parentless node, NotFoundError when the store is empty
	GetRoot(ctx context.Context) (*models.Node, error)

	// SetParent moves nodeID under parentID as a single atomic write.
	// Returns a NotFoundError if either ID does not resolve and an
	// InvalidStructureError if nodeID has no parent.
	SetParent(ctx context.Context, nodeID, parentID string) (*models.Node, error)
}
