package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/lvl0lvl/slack-mcp-identity-server/internal/errors"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/metrics"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// maxToolBody caps the size of a tool call request body.
const maxToolBody = 1 << 20

// ToolRunner is the tool registry surface served over HTTP.
type ToolRunner interface {
	List() []tools.Descriptor
	Lookup(name string) (tools.Descriptor, bool)
	Call(ctx context.Context, name string, args tools.Args) (any, error)
}

// ToolListResponse is returned by GET /v1/tools.
type ToolListResponse struct {
	Tools []tools.Descriptor `json:"tools"`
}

// ToolCallResponse is returned by a successful POST /v1/tools/{name}.
type ToolCallResponse struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// ToolsHandler serves the tool registry.
type ToolsHandler struct {
	runner ToolRunner
}

// NewToolsHandler creates a handler backed by runner.
func NewToolsHandler(runner ToolRunner) *ToolsHandler {
	return &ToolsHandler{runner: runner}
}

// List handles GET /v1/tools.
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToolListResponse{Tools: h.runner.List()})
}

// Describe handles GET /v1/tools/{name}.
func (h *ToolsHandler) Describe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	desc, ok := h.runner.Lookup(name)
	if !ok {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), tools.ErrUnknownTool, "unknown tool: "+name))
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// Call handles POST /v1/tools/{name}. The body is a JSON object of tool
// arguments; an empty body means no arguments.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args, err := decodeArgs(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object of tool arguments"))
		return
	}

	result, err := h.runner.Call(r.Context(), name, args)
	metrics.RecordToolCall(name, err)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ToolCallResponse{Tool: name, Result: result})
}

func decodeArgs(r *http.Request) (tools.Args, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxToolBody+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxToolBody {
		return nil, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return tools.Args{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args tools.Args
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	if args == nil {
		args = tools.Args{}
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
