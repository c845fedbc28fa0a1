// Package memory implements NodeRepository on an in-process map.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/repositories"
)

// NodeRepository keeps nodes in a map with materialized children lists.
// Every method holds mu for its whole duration, so SetParent's three writes
// are never observed half applied.
type NodeRepository struct {
	mu     sync.RWMutex
	nodes  map[string]*models.Node
	rootID string

	newID func() string
	now   func() time.Time
}

// Option configures a NodeRepository
type Option func(*NodeRepository)

// WithIDGenerator overrides UUID generation (tests use deterministic IDs)
func WithIDGenerator(fn func() string) Option {
	return func(r *NodeRepository) { r.newID = fn }
}

// NewNodeRepository creates an empty in-memory repository
func NewNodeRepository(opts ...Option) *NodeRepository {
	r := &NodeRepository{
		nodes: make(map[string]*models.Node),
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ repositories.NodeRepository = (*NodeRepository)(nil)

// AddNode creates a node, appending it to the parent's children when parentID is set
func (r *NodeRepository) AddNode(ctx context.Context, parentID *string) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := &models.Node{
		ID:        r.newID(),
		Children:  []string{},
		CreatedAt: r.now(),
	}

	if parentID != nil {
		parent, ok := r.nodes[*parentID]
		if !ok {
			return nil, domain.NodeNotFound(*parentID)
		}
		pid := parent.ID
		node.ParentID = &pid
		parent.Children = append(parent.Children, node.ID)
	} else if r.rootID == "" {
		r.rootID = node.ID
	}

	r.nodes[node.ID] = node
	return node.Clone(), nil
}

// GetNode retrieves a node by ID
func (r *NodeRepository) GetNode(ctx context.Context, id string) (*models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return nil, domain.NodeNotFound(id)
	}
	return node.Clone(), nil
}

// GetNodeCount returns the number of stored nodes
func (r *NodeRepository) GetNodeCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes), nil
}

// GetRoot returns the first parentless node created
func (r *NodeRepository) GetRoot(ctx context.Context) (*models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.rootID == "" {
		return nil, &domain.NotFoundError{Message: "tree has no root"}
	}
	return r.nodes[r.rootID].Clone(), nil
}

// SetParent moves nodeID under parentID
func (r *NodeRepository) SetParent(ctx context.Context, nodeID, parentID string) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		return nil, domain.NodeNotFound(nodeID)
	}
	newParent, ok := r.nodes[parentID]
	if !ok {
		return nil, domain.NodeNotFound(parentID)
	}
	if node.ParentID == nil {
		return nil, domain.InvalidStructure("node %s is the root and cannot be moved", nodeID)
	}
	if *node.ParentID == parentID {
		return node.Clone(), nil
	}

	if oldParent, ok := r.nodes[*node.ParentID]; ok {
		oldParent.RemoveChild(nodeID)
	}
	newParent.Children = append(newParent.Children, nodeID)
	pid := newParent.ID
	node.ParentID = &pid

	return node.Clone(), nil
}
