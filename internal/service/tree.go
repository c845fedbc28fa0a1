package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"nodetree/internal/config"
	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/repositories"
	"nodetree/internal/domain/services"
	"nodetree/internal/observability"
)

type treeService struct {
	nodeRepo  repositories.NodeRepository
	txManager repositories.TransactionManager
	metrics   *observability.TreeMetrics
	logger    *slog.Logger
}

// NewTreeService creates a new tree service. metrics may be nil.
func NewTreeService(
	nodeRepo repositories.NodeRepository,
	txManager repositories.TransactionManager,
	metrics *observability.TreeMetrics,
	logger *slog.Logger,
) services.TreeService {
	return &treeService{
		nodeRepo:  nodeRepo,
		txManager: txManager,
		metrics:   metrics,
		logger:    logger,
	}
}

// AddNode creates a node. The root check and the insert share one
// transaction, so two concurrent root creations cannot both succeed.
func (s *treeService) AddNode(ctx context.Context, parentID *string) (info *models.NodeInfo, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(observability.OpAddNode, start, err) }()

	// Normalize empty string to nil (root)
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if parentID != nil {
		if err := validateNodeID("parent", *parentID); err != nil {
			return nil, err
		}
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if parentID == nil {
			count, err := s.nodeRepo.GetNodeCount(txCtx)
			if err != nil {
				return err
			}
			if count > 0 {
				s.logger.Debug("root creation rejected", "node_count", count)
				return &domain.DuplicateRootError{Message: "tree already has a root"}
			}
		}

		node, err := s.nodeRepo.AddNode(txCtx, parentID)
		if err != nil {
			return err
		}

		info, err = s.nodeInfo(txCtx, node)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node created",
		"node_id", info.ID,
		"parent_id", info.ParentID,
		"depth", info.Depth,
	)

	return info, nil
}

// GetNode returns the NodeInfo of one node
func (s *treeService) GetNode(ctx context.Context, id string) (info *models.NodeInfo, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(observability.OpGetNode, start, err) }()

	if err := validateNodeID("node", id); err != nil {
		return nil, err
	}

	err = s.txManager.ReadTx(ctx, func(txCtx context.Context) error {
		node, err := s.nodeRepo.GetNode(txCtx, id)
		if err != nil {
			return err
		}
		info, err = s.nodeInfo(txCtx, node)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetRoot returns the NodeInfo of the root
func (s *treeService) GetRoot(ctx context.Context) (info *models.NodeInfo, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(observability.OpGetRoot, start, err) }()

	err = s.txManager.ReadTx(ctx, func(txCtx context.Context) error {
		root, err := s.nodeRepo.GetRoot(txCtx)
		if err != nil {
			return err
		}
		info, err = s.nodeInfo(txCtx, root)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// CountNodes returns the number of stored nodes
func (s *treeService) CountNodes(ctx context.Context) (int, error) {
	return s.nodeRepo.GetNodeCount(ctx)
}

// GetDescendants lists the subtree below id in breadth-first order. The
// walk runs in one read section so a concurrent move is seen entirely or not
// at all.
func (s *treeService) GetDescendants(ctx context.Context, id string) (infos []models.NodeInfo, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(observability.OpGetDescendants, start, err) }()

	if err := validateNodeID("node", id); err != nil {
		return nil, err
	}

	err = s.txManager.ReadTx(ctx, func(txCtx context.Context) error {
		node, err := s.nodeRepo.GetNode(txCtx, id)
		if err != nil {
			return err
		}

		info, err := s.nodeInfo(txCtx, node)
		if err != nil {
			return err
		}

		infos, err = s.descendants(txCtx, node, info.Depth, info.Root)
		return err
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// SetParent moves nodeID under parentID. The descendant scan and the move
// run in one transaction so no concurrent move can slip a cycle in between.
func (s *treeService) SetParent(ctx context.Context, nodeID, parentID string) (info *models.NodeInfo, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(observability.OpSetParent, start, err) }()

	if err := validateNodeID("node", nodeID); err != nil {
		return nil, err
	}
	if err := validateNodeID("parent", parentID); err != nil {
		return nil, err
	}
	if nodeID == parentID {
		s.logger.Debug("reparent rejected: self parent", "node_id", nodeID)
		return nil, domain.InvalidArgument("node %s cannot be its own parent", nodeID)
	}

	var previousParent *string
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		node, err := s.nodeRepo.GetNode(txCtx, nodeID)
		if err != nil {
			return err
		}
		previousParent = node.ParentID

		// Depth and root are irrelevant to the cycle check
		below, err := s.descendants(txCtx, node, 0, "")
		if err != nil {
			return err
		}
		s.metrics.ObserveCycleCheck(len(below))

		for _, d := range below {
			if d.ID == parentID {
				s.logger.Debug("reparent rejected: cycle",
					"node_id", nodeID,
					"parent_id", parentID,
				)
				return domain.InvalidStructure("cannot move node %s under its own descendant %s", nodeID, parentID)
			}
		}

		moved, err := s.nodeRepo.SetParent(txCtx, nodeID, parentID)
		if err != nil {
			return err
		}

		info, err = s.nodeInfo(txCtx, moved)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node moved",
		"node_id", nodeID,
		"from_parent_id", previousParent,
		"parent_id", parentID,
		"depth", info.Depth,
	)

	return info, nil
}

// nodeInfo walks the parent chain of node to compute its depth and root.
// A chain that revisits a node or points at a missing node means the
// store is corrupt; both surface as InvalidStructureError.
func (s *treeService) nodeInfo(ctx context.Context, node *models.Node) (*models.NodeInfo, error) {
	depth := 0
	current := node
	seen := map[string]bool{node.ID: true}

	for current.ParentID != nil {
		parent, err := s.nodeRepo.GetNode(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.InvalidStructure("node %s references missing parent %s", current.ID, *current.ParentID)
			}
			return nil, err
		}
		if seen[parent.ID] {
			return nil, domain.InvalidStructure("parent chain of node %s loops at %s", node.ID, parent.ID)
		}
		seen[parent.ID] = true

		depth++
		current = parent
	}

	return &models.NodeInfo{
		ID:       node.ID,
		ParentID: node.ParentID,
		Depth:    depth,
		Root:     current.ID,
	}, nil
}

// descendants runs a FIFO traversal from start's children. Every node one
// level below a node at depth d is at depth d+1, so depths are assigned per
// level instead of walking each node's parent chain.
func (s *treeService) descendants(ctx context.Context, start *models.Node, startDepth int, root string) ([]models.NodeInfo, error) {
	type queued struct {
		id    string
		depth int
	}

	result := []models.NodeInfo{}
	visited := map[string]bool{start.ID: true}

	queue := make([]queued, 0, len(start.Children))
	for _, childID := range start.Children {
		queue = append(queue, queued{id: childID, depth: startDepth + 1})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if visited[item.id] {
			return nil, domain.InvalidStructure("node %s reached twice below %s", item.id, start.ID)
		}
		visited[item.id] = true

		node, err := s.nodeRepo.GetNode(ctx, item.id)
		if err != nil {
			return nil, err
		}

		result = append(result, models.NodeInfo{
			ID:       node.ID,
			ParentID: node.ParentID,
			Depth:    item.depth,
			Root:     root,
		})

		for _, childID := range node.Children {
			queue = append(queue, queued{id: childID, depth: item.depth + 1})
		}
	}

	return result, nil
}

// validateNodeID checks an ID argument before it reaches the store
func validateNodeID(field, id string) error {
	err := validation.Validate(id,
		validation.Required,
		validation.Length(1, config.MaxNodeIDLength),
	)
	if err != nil {
		return domain.InvalidArgument("%s id: %v", field, err)
	}
	return nil
}
