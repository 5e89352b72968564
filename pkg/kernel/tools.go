package kernel

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/services"
	"github.com/manthysbr/aule-weather/pkg/mcp"
)

type toolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Async       bool                   `json:"async"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.deps.Tools.ListTools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, Parameters: t.Parameters.Schema(), Async: t.Deferred})
	}
	writeJSON(w, http.StatusOK, out)
}

type runToolRequest struct {
	ConversationID string                 `json:"conversation_id"`
	Arguments      map[string]interface{} `json:"arguments"`
}

type runToolResponse struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "name")
	if !ok {
		return
	}
	if _, found := s.deps.Tools.GetTool(name); !found {
		writeError(w, http.StatusNotFound, "tool not found: "+name)
		return
	}

	var req runToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if req.ConversationID != "" {
		ctx = services.ContextWithConversation(ctx, domain.ConversationID(req.ConversationID))
	}
	result, err := s.deps.Tools.Execute(ctx, name, req.Arguments)
	if err != nil {
		s.logger.Warn("tool run failed", "tool", name, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, runToolResponse{Result: result, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runToolResponse{Result: result})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.deps.MCP == nil {
		writeError(w, http.StatusServiceUnavailable, "mcp endpoint is disabled")
		return
	}
	var req mcp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json-rpc request")
		return
	}
	resp, ok := s.deps.MCP.Handle(r.Context(), req)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
