package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"emailer/internal/core"
)

// RootHandler serves GET /v1/, describing the server and its capabilities.
type RootHandler struct {
	settings     map[string]any
	rootURL      string
	capabilities map[string]any
}

// NewRootHandler creates a RootHandler. capabilities maps a capability name
// to its JSON descriptor, e.g. "emailer" to the plugin capability.
func NewRootHandler(rootURL string, settings map[string]any, capabilities map[string]any) *RootHandler {
	if capabilities == nil {
		capabilities = map[string]any{}
	}
	return &RootHandler{settings: settings, rootURL: rootURL, capabilities: capabilities}
}

// RegisterRoutes mounts the root endpoint.
func (h *RootHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
}

// Get returns the server description.
func (h *RootHandler) Get(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"url":          h.rootURL,
		"capabilities": h.capabilities,
	}
	for _, key := range []string{"project_name", "project_version", "project_docs", "http_api_version"} {
		if v, ok := h.settings[key]; ok {
			body[key] = v
		}
	}
	core.JSON(w, r, http.StatusOK, body)
}
