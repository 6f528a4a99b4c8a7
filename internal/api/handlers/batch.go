package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"dario.cat/mergo"

	"emailer/internal/core"
	"emailer/internal/db"
	"emailer/internal/types"
)

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Defaults *BatchSubrequest  `json:"defaults,omitempty" validate:"-"`
	Requests []BatchSubrequest `json:"requests" validate:"required,min=1,dive"`
}

// BatchSubrequest is one operation of a batch. Unset fields are taken from
// the batch defaults.
type BatchSubrequest struct {
	Method string         `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path   string         `json:"path" validate:"required,startswith=/"`
	Body   map[string]any `json:"body,omitempty"`
}

// BatchResponse lists one response per sub-request, in request order.
type BatchResponse struct {
	Responses []BatchSubresponse `json:"responses"`
}

// BatchSubresponse is the outcome of one sub-request.
type BatchSubresponse struct {
	Status int    `json:"status"`
	Path   string `json:"path"`
	Body   any    `json:"body"`
}

// Batch handles POST /v1/batch. Every sub-request runs in one transaction, so
// the changes they make are announced together and same-kind changes are
// merged into one event. Sub-requests failing with a client error are
// reported in place; any other failure aborts the whole batch.
func (h *ResourceHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if err := core.DecodeJSON(w, r, &body); err != nil {
		core.Error(w, r, err)
		return
	}

	if len(body.Requests) > h.cfg.MaxBatchRequests {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationBatchSize,
			fmt.Sprintf("Number of requests is limited to %d", h.cfg.MaxBatchRequests), nil,
			map[string]any{"limit": h.cfg.MaxBatchRequests, "received": len(body.Requests)}))
		return
	}

	if err := applyDefaults(&body); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(body); err != nil {
		core.Error(w, r, err)
		return
	}

	targets := make([]target, len(body.Requests))
	for i, sub := range body.Requests {
		t, err := parsePath(sub.Path)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		targets[i] = t
	}

	resp := BatchResponse{Responses: make([]BatchSubresponse, 0, len(body.Requests))}
	req := h.newRequest(r)
	err := h.store.RunInTx(r.Context(), req, func(ctx context.Context, wr *db.Writer) error {
		for i, sub := range body.Requests {
			status, out, err := h.write(ctx, wr, sub.Method, targets[i], sub.Body)
			if err != nil {
				status = core.ErrorStatus(err)
				if status >= http.StatusInternalServerError {
					return err
				}
				out = core.ErrorBody(r, err)
			}
			resp.Responses = append(resp.Responses, BatchSubresponse{Status: status, Path: sub.Path, Body: out})
		}
		return nil
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("batch completed",
		"request_id", req.ID,
		"requests", len(body.Requests),
	)
	core.JSON(w, r, http.StatusOK, resp)
}

// applyDefaults fills every sub-request from body.Defaults. Body members are
// merged recursively; values set on the sub-request win.
func applyDefaults(body *BatchRequest) error {
	d := body.Defaults
	if d == nil {
		d = &BatchSubrequest{}
	}
	for i := range body.Requests {
		sub := &body.Requests[i]
		if sub.Method == "" {
			sub.Method = d.Method
		}
		sub.Method = strings.ToUpper(sub.Method)
		if sub.Path == "" {
			sub.Path = d.Path
		}
		if len(d.Body) == 0 {
			continue
		}
		if sub.Body == nil {
			sub.Body = make(map[string]any, len(d.Body))
		}
		if err := mergo.Merge(&sub.Body, deepCopy(d.Body)); err != nil {
			return types.NewAppError(types.ErrCodeValidationInvalidRequest, "invalid batch defaults", err)
		}
	}
	return nil
}

// deepCopy copies nested maps and slices so merged sub-requests do not share
// state with the defaults.
func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	}
	return v
}
