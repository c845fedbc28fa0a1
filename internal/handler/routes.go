package handler

import "net/http"

// RegisterRoutes mounts the node endpoints on mux (Go 1.22+ patterns)
func (h *NodeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /nodes", h.CreateNode)
	mux.HandleFunc("GET /nodes/root", h.GetRoot) // More specific than {id}
	mux.HandleFunc("GET /nodes/{id}", h.GetNode)
	mux.HandleFunc("PATCH /nodes/{id}", h.Reparent)
	mux.HandleFunc("GET /nodes/{id}/descendants", h.GetDescendants)

	mux.HandleFunc("GET /tree/check", h.CheckTree)
}
