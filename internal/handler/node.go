package handler

import (
	"log/slog"
	"net/http"

	"nodetree/internal/domain/services"
	"nodetree/internal/httputil"
)

// NodeHandler handles node HTTP requests
type NodeHandler struct {
	treeService services.TreeService
	logger      *slog.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(treeService services.TreeService, logger *slog.Logger) *NodeHandler {
	return &NodeHandler{
		treeService: treeService,
		logger:      logger,
	}
}

// CreateNode creates a node, or the root when no parent is given
// POST /nodes?parent=<id>
// Returns 201, 405 if a root already exists, 406 if the parent is unknown
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var parentID *string
	if parent := r.URL.Query().Get("parent"); parent != "" {
		parentID = &parent
	}

	info, err := h.treeService.AddNode(r.Context(), parentID)
	if err != nil {
		handleCreateError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, info)
}

// GetNode returns one node's info
// GET /nodes/{id}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	info, err := h.treeService.GetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, info)
}

// GetRoot returns the root's info
// GET /nodes/root
func (h *NodeHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	info, err := h.treeService.GetRoot(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, info)
}

// GetDescendants lists the subtree below a node, breadth first
// GET /nodes/{id}/descendants
func (h *NodeHandler) GetDescendants(w http.ResponseWriter, r *http.Request) {
	infos, err := h.treeService.GetDescendants(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, infos)
}

// Reparent moves a node (with its subtree) under a new parent
// PATCH /nodes/{id}?parent=<id>
func (h *NodeHandler) Reparent(w http.ResponseWriter, r *http.Request) {
	parentID := r.URL.Query().Get("parent")
	if parentID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "parent query parameter is required")
		return
	}

	info, err := h.treeService.SetParent(r.Context(), r.PathValue("id"), parentID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, info)
}

// CheckTree runs a full invariant check
// GET /tree/check
// Returns 200 with the report when healthy, 409 with the report otherwise
func (h *NodeHandler) CheckTree(w http.ResponseWriter, r *http.Request) {
	report, err := h.treeService.Verify(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusConflict
	}
	httputil.RespondJSON(w, status, report)
}

// HealthCheck reports liveness and the node count
// GET /health
func (h *NodeHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	count, err := h.treeService.CountNodes(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		httputil.RespondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"nodes":  count,
	})
}
