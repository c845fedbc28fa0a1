package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/observability"
)

// Verify walks the tree from the root and records every invariant violation
// it finds. Problems are reported, not returned as errors; err is reserved
// for storage failures.
func (s *treeService) Verify(ctx context.Context) (report *models.TreeReport, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(observability.OpVerify, start, err) }()

	report = &models.TreeReport{Problems: []string{}}

	// One read section so the walk sees one consistent tree
	err = s.txManager.ReadTx(ctx, func(txCtx context.Context) error {
		return s.verify(txCtx, report)
	})
	if err != nil {
		return nil, err
	}

	if !report.Healthy() {
		s.logger.Warn("tree verification found problems",
			"node_count", report.NodeCount,
			"reachable", report.Reachable,
			"problems", len(report.Problems),
		)
	}

	return report, nil
}

func (s *treeService) verify(ctx context.Context, report *models.TreeReport) error {
	count, err := s.nodeRepo.GetNodeCount(ctx)
	if err != nil {
		return err
	}
	report.NodeCount = count
	if count == 0 {
		return nil
	}

	root, err := s.nodeRepo.GetRoot(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		report.Problems = append(report.Problems, fmt.Sprintf("no root among %d nodes", count))
		return nil
	}
	if err != nil {
		return err
	}
	report.Root = root.ID

	type queued struct {
		node  *models.Node
		depth int
	}

	reachable := 1
	seen := map[string]bool{root.ID: true}
	queue := []queued{{node: root}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth > report.Height {
			report.Height = item.depth
		}

		for _, childID := range item.node.Children {
			if seen[childID] {
				report.Problems = append(report.Problems,
					fmt.Sprintf("node %s is listed more than once (again under %s)", childID, item.node.ID))
				continue
			}
			seen[childID] = true

			child, err := s.nodeRepo.GetNode(ctx, childID)
			if errors.Is(err, domain.ErrNotFound) {
				report.Problems = append(report.Problems,
					fmt.Sprintf("node %s lists missing child %s", item.node.ID, childID))
				continue
			}
			if err != nil {
				return err
			}
			reachable++

			switch {
			case child.ParentID == nil:
				report.Problems = append(report.Problems,
					fmt.Sprintf("node %s is a child of %s but has no parent", childID, item.node.ID))
			case *child.ParentID != item.node.ID:
				report.Problems = append(report.Problems,
					fmt.Sprintf("node %s is a child of %s but points at %s", childID, item.node.ID, *child.ParentID))
			}

			queue = append(queue, queued{node: child, depth: item.depth + 1})
		}
	}

	report.Reachable = reachable
	if report.Reachable != count {
		report.Problems = append(report.Problems,
			fmt.Sprintf("%d of %d nodes are unreachable from root %s", count-report.Reachable, count, root.ID))
	}

	return nil
}
