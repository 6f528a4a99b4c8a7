// Package handlers contains the HTTP handlers of the emailer server: the
// bucket, collection, group and record endpoints, the batch endpoint and the
// API root advertising server capabilities.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"emailer/internal/core"
	"emailer/internal/db"
	"emailer/internal/events"
	"emailer/internal/types"
)

// Store is the resource storage used by the handlers. *db.Store implements it.
type Store interface {
	Get(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error)
	List(ctx context.Context, parentID string, resource types.ResourceName) ([]types.Object, error)
	RunInTx(ctx context.Context, req *events.Request, fn func(ctx context.Context, w *db.Writer) error) error
}

// reader is satisfied by both Store and *db.Writer.
type reader interface {
	Get(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error)
	List(ctx context.Context, parentID string, resource types.ResourceName) ([]types.Object, error)
}

// ResourceConfig holds the values exposed to hooks through request info.
type ResourceConfig struct {
	RootURL          string
	Settings         map[string]any
	MaxBatchRequests int
}

// ResourceHandler serves /buckets and everything beneath it, plus /batch.
type ResourceHandler struct {
	store     Store
	validator *core.Validator
	cfg       ResourceConfig
	logger    *slog.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(store Store, v *core.Validator, cfg ResourceConfig, l *slog.Logger) *ResourceHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator()
	}
	if cfg.MaxBatchRequests <= 0 {
		cfg.MaxBatchRequests = 25
	}
	return &ResourceHandler{store: store, validator: v, cfg: cfg, logger: l}
}

// RegisterRoutes mounts the resource tree and the batch endpoint. Paths are
// resolved by parsePath so single requests and batch sub-requests share one
// code path.
func (h *ResourceHandler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/buckets", h.Serve)
	r.HandleFunc("/buckets/*", h.Serve)
	r.Post("/batch", h.Batch)
}

// target is the object or collection of objects addressed by a path.
type target struct {
	parentID string
	resource types.ResourceName
	id       string // empty for plural endpoints
}

func (t target) plural() bool { return t.id == "" }

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// childResources maps a URL segment to its resource and the resource of the
// parent it must follow.
var childResources = map[string]struct {
	resource types.ResourceName
	parent   types.ResourceName
}{
	"buckets":     {types.ResourceBucket, ""},
	"collections": {types.ResourceCollection, types.ResourceBucket},
	"groups":      {types.ResourceGroup, types.ResourceBucket},
	"records":     {types.ResourceRecord, types.ResourceCollection},
}

// parsePath resolves a path such as /v1/buckets/b/collections/c/records.
func parsePath(path string) (target, error) {
	path, _, _ = strings.Cut(path, "?")
	path = strings.TrimPrefix(path, "/v1")
	path = strings.Trim(path, "/")
	if path == "" {
		return target{}, invalidPath(path)
	}
	segments := strings.Split(path, "/")

	var (
		t    target
		last types.ResourceName
	)
	for i := 0; i < len(segments); i += 2 {
		child, ok := childResources[segments[i]]
		if !ok || child.parent != last {
			return target{}, invalidPath(path)
		}
		if last != "" {
			t.parentID = db.ObjectURI(t.parentID, last, t.id)
		}
		t.resource = child.resource
		t.id = ""
		if i+1 < len(segments) {
			if !idPattern.MatchString(segments[i+1]) {
				return target{}, invalidPath(path)
			}
			t.id = segments[i+1]
		}
		last = child.resource
	}
	return t, nil
}

func invalidPath(path string) error {
	return types.NewAppError(types.ErrCodeNotFoundObject, fmt.Sprintf("unknown path %q", "/"+path), nil)
}

// Serve handles every method on the resource tree.
func (h *ResourceHandler) Serve(w http.ResponseWriter, r *http.Request) {
	t, err := parsePath(r.URL.Path)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		status, body, err := h.read(r.Context(), h.store, t)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, status, body)
		return
	}

	var payload map[string]any
	if hasBody(r.Method) && r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &payload); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	var (
		status int
		body   any
	)
	req := h.newRequest(r)
	err = h.store.RunInTx(r.Context(), req, func(ctx context.Context, wr *db.Writer) error {
		var err error
		status, body, err = h.write(ctx, wr, r.Method, t, payload)
		return err
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, status, body)
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// newRequest builds the event request state for r.
func (h *ResourceHandler) newRequest(r *http.Request) *events.Request {
	client := r.RemoteAddr
	if host, _, err := net.SplitHostPort(client); err == nil {
		client = host
	}
	return events.NewRequest(types.GetRequestID(r.Context()), types.RequestInfo{
		ClientAddress: client,
		UserAgent:     r.UserAgent(),
		RootURL:       h.cfg.RootURL,
		Settings:      h.cfg.Settings,
	})
}

func (h *ResourceHandler) read(ctx context.Context, rd reader, t target) (int, any, error) {
	if t.plural() {
		objs, err := rd.List(ctx, t.parentID, t.resource)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, core.APIResponse{Data: objs}, nil
	}
	obj, err := rd.Get(ctx, t.parentID, t.resource, t.id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, core.APIResponse{Data: obj}, nil
}

func (h *ResourceHandler) write(ctx context.Context, wr *db.Writer, method string, t target, payload map[string]any) (int, any, error) {
	data, err := objectData(payload)
	if err != nil {
		return 0, nil, err
	}

	switch {
	case method == http.MethodPost && t.plural():
		if id := data.ID(); id != "" && !idPattern.MatchString(id) {
			return 0, nil, types.NewAppError(types.ErrCodeValidationInvalidRequest, fmt.Sprintf("invalid id %q", id), nil)
		}
		obj, err := wr.Create(ctx, t.parentID, t.resource, data)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, core.APIResponse{Data: obj}, nil

	case method == http.MethodPut && !t.plural():
		obj, created, err := wr.Put(ctx, t.parentID, t.resource, t.id, data)
		if err != nil {
			return 0, nil, err
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		return status, core.APIResponse{Data: obj}, nil

	case method == http.MethodPatch && !t.plural():
		current, err := wr.Get(ctx, t.parentID, t.resource, t.id)
		if err != nil {
			return 0, nil, err
		}
		merged := make(types.Object, len(current)+len(data))
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range data {
			merged[k] = v
		}
		obj, _, err := wr.Put(ctx, t.parentID, t.resource, t.id, merged)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, core.APIResponse{Data: obj}, nil

	case method == http.MethodDelete && !t.plural():
		obj, err := wr.Delete(ctx, t.parentID, t.resource, t.id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, core.APIResponse{Data: obj}, nil

	case method == http.MethodGet:
		return h.read(ctx, wr, t)
	}

	return 0, nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRequest,
		fmt.Sprintf("method %s not allowed on this endpoint", method), nil,
		map[string]any{"method": method})
}

// objectData extracts the "data" member of a request body. A missing body or
// member yields an empty object.
func objectData(payload map[string]any) (types.Object, error) {
	raw, ok := payload["data"]
	if !ok || raw == nil {
		return types.Object{}, nil
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, `"data" must be an object`, nil)
	}
	obj := make(types.Object, len(data))
	for k, v := range data {
		obj[k] = v
	}
	return obj, nil
}
