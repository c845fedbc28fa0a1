package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/services"
	"nodetree/internal/observability"
	"nodetree/internal/repository/memory"
	"nodetree/internal/repository/serial"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService returns a service over an in-memory store whose IDs are n1, n2, ...
func newTestService(t *testing.T) services.TreeService {
	t.Helper()
	n := 0
	repo := memory.NewNodeRepository(memory.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}))
	return NewTreeService(repo, serial.NewTransactionManager(), nil, discardLogger())
}

func mustAdd(t *testing.T, svc services.TreeService, parentID *string) *models.NodeInfo {
	t.Helper()
	info, err := svc.AddNode(context.Background(), parentID)
	if err != nil {
		t.Fatalf("AddNode(%v): %v", parentID, err)
	}
	return info
}

func ptr(s string) *string { return &s }

func ids(infos []models.NodeInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assertHealthy(t *testing.T, svc services.TreeService) {
	t.Helper()
	report, err := svc.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Healthy() {
		t.Fatalf("tree has problems: %v", report.Problems)
	}
}

func TestAddNode_SingleRoot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	root := mustAdd(t, svc, nil)
	if root.ParentID != nil || root.Depth != 0 || root.Root != root.ID {
		t.Errorf("root info = %+v", root)
	}

	_, err := svc.AddNode(ctx, nil)
	if !errors.Is(err, domain.ErrDuplicateRoot) {
		t.Fatalf("second root: got %v, want ErrDuplicateRoot", err)
	}

	// Empty parent means root as well
	_, err = svc.AddNode(ctx, ptr(""))
	if !errors.Is(err, domain.ErrDuplicateRoot) {
		t.Fatalf("empty parent: got %v, want ErrDuplicateRoot", err)
	}

	child := mustAdd(t, svc, &root.ID)
	if child.ParentID == nil || *child.ParentID != root.ID {
		t.Errorf("child parent = %v, want %s", child.ParentID, root.ID)
	}
	if child.Depth != 1 || child.Root != root.ID {
		t.Errorf("child info = %+v", child)
	}

	assertHealthy(t, svc)
}

func TestAddNode_EmptyParentCreatesRoot(t *testing.T) {
	svc := newTestService(t)

	root := mustAdd(t, svc, ptr(""))
	if root.ParentID != nil {
		t.Errorf("parent = %v, want nil", *root.ParentID)
	}
}

func TestAddNode_ConcurrentRoots(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddNode(ctx, nil)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, domain.ErrDuplicateRoot):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created %d roots, want 1", created)
	}
}

func TestGetDescendants_BreadthFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r := mustAdd(t, svc, nil)
	a := mustAdd(t, svc, &r.ID)
	b := mustAdd(t, svc, &r.ID)
	c := mustAdd(t, svc, &a.ID)

	got, err := svc.GetDescendants(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetDescendants: %v", err)
	}

	want := []string{a.ID, b.ID, c.ID}
	if !equalIDs(ids(got), want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}

	wantDepth := map[string]int{a.ID: 1, b.ID: 1, c.ID: 2}
	for _, info := range got {
		if info.Depth != wantDepth[info.ID] {
			t.Errorf("depth(%s) = %d, want %d", info.ID, info.Depth, wantDepth[info.ID])
		}
		if info.Root != r.ID {
			t.Errorf("root(%s) = %s, want %s", info.ID, info.Root, r.ID)
		}
	}

	// Subtree of A only, depths stay absolute
	sub, err := svc.GetDescendants(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetDescendants(A): %v", err)
	}
	if len(sub) != 1 || sub[0].ID != c.ID || sub[0].Depth != 2 {
		t.Errorf("descendants(A) = %+v", sub)
	}
}

func TestGetDescendants_Leaf(t *testing.T) {
	svc := newTestService(t)

	r := mustAdd(t, svc, nil)
	leaf := mustAdd(t, svc, &r.ID)

	got, err := svc.GetDescendants(context.Background(), leaf.ID)
	if err != nil {
		t.Fatalf("GetDescendants: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil slice", got)
	}
}

func TestSetParent_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r := mustAdd(t, svc, nil)
	c1 := mustAdd(t, svc, &r.ID)
	c2 := mustAdd(t, svc, &c1.ID)

	info, err := svc.SetParent(ctx, c2.ID, r.ID)
	if err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	if info.ID != c2.ID || info.ParentID == nil || *info.ParentID != r.ID || info.Depth != 1 || info.Root != r.ID {
		t.Errorf("info = %+v, want {id: %s, parent: %s, depth: 1, root: %s}", info, c2.ID, r.ID, r.ID)
	}

	children, err := svc.GetDescendants(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetDescendants(R): %v", err)
	}
	if !equalIDs(ids(children), []string{c1.ID, c2.ID}) {
		t.Errorf("descendants(R) = %v, want [%s %s]", ids(children), c1.ID, c2.ID)
	}

	below, err := svc.GetDescendants(ctx, c1.ID)
	if err != nil {
		t.Fatalf("GetDescendants(C1): %v", err)
	}
	if len(below) != 0 {
		t.Errorf("descendants(C1) = %v, want none", ids(below))
	}

	assertHealthy(t, svc)
}

func TestSetParent_DepthFollowsSubtree(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// r -> a -> b -> c, r -> d
	r := mustAdd(t, svc, nil)
	a := mustAdd(t, svc, &r.ID)
	b := mustAdd(t, svc, &a.ID)
	c := mustAdd(t, svc, &b.ID)
	d := mustAdd(t, svc, &r.ID)

	if _, err := svc.SetParent(ctx, b.ID, d.ID); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	if _, err := svc.SetParent(ctx, d.ID, a.ID); err != nil {
		t.Fatalf("SetParent: %v", err)
	}

	// r -> a -> d -> b -> c
	want := map[string]int{r.ID: 0, a.ID: 1, d.ID: 2, b.ID: 3, c.ID: 4}
	for id, depth := range want {
		info, err := svc.GetNode(ctx, id)
		if err != nil {
			t.Fatalf("GetNode(%s): %v", id, err)
		}
		if info.Depth != depth {
			t.Errorf("depth(%s) = %d, want %d", id, info.Depth, depth)
		}
	}

	all, err := svc.GetDescendants(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetDescendants: %v", err)
	}
	for _, info := range all {
		if info.Depth != want[info.ID] {
			t.Errorf("descendant depth(%s) = %d, want %d", info.ID, info.Depth, want[info.ID])
		}
	}

	assertHealthy(t, svc)
}

func TestSetParent_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r := mustAdd(t, svc, nil)
	a := mustAdd(t, svc, &r.ID)
	b := mustAdd(t, svc, &a.ID)
	c := mustAdd(t, svc, &b.ID)

	tests := []struct {
		name     string
		nodeID   string
		parentID string
		want     error
	}{
		{"self parent", a.ID, a.ID, domain.ErrInvalidArgument},
		{"direct child", a.ID, b.ID, domain.ErrInvalidStructure},
		{"grandchild", a.ID, c.ID, domain.ErrInvalidStructure},
		{"root", r.ID, c.ID, domain.ErrInvalidStructure},
		{"root to itself", r.ID, r.ID, domain.ErrInvalidArgument},
		{"unknown node", "nonexistent", r.ID, domain.ErrNotFound},
		{"unknown parent", a.ID, "nonexistent", domain.ErrNotFound},
		{"empty node", "", r.ID, domain.ErrInvalidArgument},
		{"oversized parent", a.ID, strings.Repeat("x", 200), domain.ErrInvalidArgument},
	}

	before, err := svc.GetDescendants(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetDescendants: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetParent(ctx, tt.nodeID, tt.parentID)
			if !errors.Is(err, tt.want) {
				t.Errorf("SetParent(%s, %s) = %v, want %v", tt.nodeID, tt.parentID, err, tt.want)
			}
		})
	}

	after, err := svc.GetDescendants(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetDescendants: %v", err)
	}
	if !equalIDs(ids(before), ids(after)) {
		t.Errorf("tree changed: before %v, after %v", ids(before), ids(after))
	}
	for i := range before {
		if before[i].Depth != after[i].Depth {
			t.Errorf("depth of %s changed from %d to %d", before[i].ID, before[i].Depth, after[i].Depth)
		}
	}
	assertHealthy(t, svc)
}

// TestSetParent_ConcurrentSwap moves two siblings under each other at once.
// Only one move can win; the other must see the cycle.
func TestSetParent_ConcurrentSwap(t *testing.T) {
	for round := 0; round < 20; round++ {
		svc := newTestService(t)
		ctx := context.Background()

		r := mustAdd(t, svc, nil)
		a := mustAdd(t, svc, &r.ID)
		b := mustAdd(t, svc, &r.ID)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = svc.SetParent(ctx, a.ID, b.ID)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = svc.SetParent(ctx, b.ID, a.ID)
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, domain.ErrInvalidStructure):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("round %d: %d moves succeeded, want 1", round, succeeded)
		}
		assertHealthy(t, svc)
	}
}

func TestReadsDuringConcurrentMoves(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// r -> {a, b}, b -> c1 -> c2 -> c3, x starts under a
	r := mustAdd(t, svc, nil)
	a := mustAdd(t, svc, &r.ID)
	b := mustAdd(t, svc, &r.ID)
	c1 := mustAdd(t, svc, &b.ID)
	c2 := mustAdd(t, svc, &c1.ID)
	c3 := mustAdd(t, svc, &c2.ID)
	x := mustAdd(t, svc, &a.ID)

	stop := make(chan struct{})
	moverErr := make(chan error, 1)
	go func() {
		targets := []string{c3.ID, a.ID}
		for i := 0; ; i++ {
			select {
			case <-stop:
				moverErr <- nil
				return
			default:
			}
			if _, err := svc.SetParent(ctx, x.ID, targets[i%2]); err != nil {
				moverErr <- err
				return
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		got, err := svc.GetDescendants(ctx, r.ID)
		if err != nil {
			close(stop)
			t.Fatalf("read %d: %v", i, err)
		}
		if len(got) != 6 {
			close(stop)
			t.Fatalf("read %d: got %d descendants %v, want 6", i, len(got), ids(got))
		}

		info, err := svc.GetNode(ctx, x.ID)
		if err != nil {
			close(stop)
			t.Fatalf("read %d: GetNode: %v", i, err)
		}
		if info.Depth != 2 && info.Depth != 5 {
			close(stop)
			t.Fatalf("read %d: depth of moving node = %d, want 2 or 5", i, info.Depth)
		}
	}
	close(stop)

	if err := <-moverErr; err != nil {
		t.Fatalf("mover: %v", err)
	}
	assertHealthy(t, svc)
}

func TestNotFoundPropagation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r := mustAdd(t, svc, nil)

	if _, err := svc.AddNode(ctx, ptr("nonexistent")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("AddNode(nonexistent) = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetDescendants(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDescendants(nonexistent) = %v, want ErrNotFound", err)
	}
	if _, err := svc.SetParent(ctx, "nonexistent", r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetParent(nonexistent, R) = %v, want ErrNotFound", err)
	}
	if _, err := svc.SetParent(ctx, r.ID, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetParent(R, nonexistent) = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetNode(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetNode(nonexistent) = %v, want ErrNotFound", err)
	}
}

func TestGetRoot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetRoot(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRoot on empty tree = %v, want ErrNotFound", err)
	}

	r := mustAdd(t, svc, nil)
	mustAdd(t, svc, &r.ID)

	got, err := svc.GetRoot(ctx)
	if err != nil {
		t.Fatalf("GetRoot: %v", err)
	}
	if got.ID != r.ID || got.Depth != 0 || got.Root != r.ID {
		t.Errorf("GetRoot = %+v", got)
	}
}

func TestTreeService_RecordsMetrics(t *testing.T) {
	metrics := observability.NewTreeMetrics(prometheus.NewRegistry())
	svc := NewTreeService(memory.NewNodeRepository(), serial.NewTransactionManager(), metrics, discardLogger())
	ctx := context.Background()

	r := mustAdd(t, svc, nil)
	_, _ = svc.AddNode(ctx, nil)
	mustAdd(t, svc, &r.ID)

	if got := testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(observability.OpAddNode, observability.OutcomeOK)); got != 2 {
		t.Errorf("add ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(observability.OpAddNode, observability.OutcomeDuplicateRoot)); got != 1 {
		t.Errorf("add duplicate_root = %v, want 1", got)
	}
}

// corruptRepo serves a fixed set of nodes and rejects writes; it lets tests
// feed the service shapes a correct store never produces.
type corruptRepo struct {
	nodes map[string]*models.Node
	root  string
}

func (r *corruptRepo) AddNode(ctx context.Context, parentID *string) (*models.Node, error) {
	return nil, errors.New("read-only")
}

func (r *corruptRepo) GetNode(ctx context.Context, id string) (*models.Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, domain.NodeNotFound(id)
	}
	return n.Clone(), nil
}

func (r *corruptRepo) GetNodeCount(ctx context.Context) (int, error) {
	return len(r.nodes), nil
}

func (r *corruptRepo) GetRoot(ctx context.Context) (*models.Node, error) {
	if r.root == "" {
		return nil, &domain.NotFoundError{Message: "tree has no root"}
	}
	return r.GetNode(ctx, r.root)
}

func (r *corruptRepo) SetParent(ctx context.Context, nodeID, parentID string) (*models.Node, error) {
	return nil, errors.New("read-only")
}

func TestNodeInfo_DetectsParentCycle(t *testing.T) {
	repo := &corruptRepo{nodes: map[string]*models.Node{
		"a": {ID: "a", ParentID: ptr("b"), Children: []string{"b"}},
		"b": {ID: "b", ParentID: ptr("a"), Children: []string{"a"}},
	}}
	svc := NewTreeService(repo, serial.NewTransactionManager(), nil, discardLogger())

	_, err := svc.GetNode(context.Background(), "a")
	if !errors.Is(err, domain.ErrInvalidStructure) {
		t.Errorf("GetNode on cyclic chain = %v, want ErrInvalidStructure", err)
	}
}

func TestGetDescendants_DetectsChildCycle(t *testing.T) {
	repo := &corruptRepo{
		root: "r",
		nodes: map[string]*models.Node{
			"r": {ID: "r", Children: []string{"a"}},
			"a": {ID: "a", ParentID: ptr("r"), Children: []string{"r"}},
		},
	}
	svc := NewTreeService(repo, serial.NewTransactionManager(), nil, discardLogger())

	_, err := svc.GetDescendants(context.Background(), "r")
	if !errors.Is(err, domain.ErrInvalidStructure) {
		t.Errorf("GetDescendants on cyclic children = %v, want ErrInvalidStructure", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name         string
		repo         *corruptRepo
		wantProblems int
		wantHeight   int
	}{
		{
			name:         "empty",
			repo:         &corruptRepo{nodes: map[string]*models.Node{}},
			wantProblems: 0,
		},
		{
			name: "healthy",
			repo: &corruptRepo{root: "r", nodes: map[string]*models.Node{
				"r": {ID: "r", Children: []string{"a"}},
				"a": {ID: "a", ParentID: ptr("r"), Children: []string{"b"}},
				"b": {ID: "b", ParentID: ptr("a"), Children: []string{}},
			}},
			wantProblems: 0,
			wantHeight:   2,
		},
		{
			name: "child points elsewhere",
			repo: &corruptRepo{root: "r", nodes: map[string]*models.Node{
				"r": {ID: "r", Children: []string{"a", "b"}},
				"a": {ID: "a", ParentID: ptr("r"), Children: []string{}},
				"b": {ID: "b", ParentID: ptr("a"), Children: []string{}},
			}},
			wantProblems: 1,
			wantHeight:   1,
		},
		{
			name: "missing child and orphan",
			repo: &corruptRepo{root: "r", nodes: map[string]*models.Node{
				"r": {ID: "r", Children: []string{"ghost"}},
				"o": {ID: "o", ParentID: ptr("r"), Children: []string{}},
			}},
			wantProblems: 2,
		},
		{
			name: "no root",
			repo: &corruptRepo{nodes: map[string]*models.Node{
				"a": {ID: "a", ParentID: ptr("b"), Children: []string{}},
			}},
			wantProblems: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewTreeService(tt.repo, serial.NewTransactionManager(), nil, discardLogger())

			report, err := svc.Verify(context.Background())
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if len(report.Problems) != tt.wantProblems {
				t.Errorf("problems = %v, want %d", report.Problems, tt.wantProblems)
			}
			if report.Height != tt.wantHeight {
				t.Errorf("height = %d, want %d", report.Height, tt.wantHeight)
			}
			if report.NodeCount != len(tt.repo.nodes) {
				t.Errorf("node count = %d, want %d", report.NodeCount, len(tt.repo.nodes))
			}
		})
	}
}
