// Package mcp exposes the tool registry over JSON-RPC 2.0, either as a stdio
// loop for desktop assistants or one request at a time over HTTP.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/services"
)

const (
	ProtocolVersion = "2024-11-05"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Request is a JSON-RPC call. A nil ID marks a notification.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      any                    `json:"id,omitempty"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      any                    `json:"id"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *Error                 `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolDesc describes a single tool, including its input schema.
type ToolDesc struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type Server struct {
	logger      *slog.Logger
	tools       *domain.ToolRegistry
	name        string
	version     string
	callTimeout time.Duration
}

func NewServer(logger *slog.Logger, tools *domain.ToolRegistry, version string) *Server {
	return &Server{
		logger:      logger,
		tools:       tools,
		name:        "aule-weather",
		version:     version,
		callTimeout: 60 * time.Second,
	}
}

// Serve reads newline-delimited requests from in until EOF or ctx ends.
// Notifications get no response.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(bufio.NewReader(in))
	enc := json.NewEncoder(out)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			_ = enc.Encode(Response{JSONRPC: "2.0", Error: &Error{Code: codeParseError, Message: err.Error()}})
			return fmt.Errorf("decode request: %w", err)
		}
		resp, ok := s.Handle(ctx, req)
		if !ok {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Handle serves one request. The bool is false for notifications.
func (s *Server) Handle(ctx context.Context, req Request) (Response, bool) {
	if req.ID == nil {
		s.logger.Debug("mcp notification", "method", req.Method)
		return Response{}, false
	}
	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if req.JSONRPC != "2.0" {
		resp.Error = &Error{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""}
		return resp, true
	}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      map[string]interface{}{"name": s.name, "version": s.version},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		}
	case "ping":
		resp.Result = map[string]interface{}{}
	case "tools/list":
		resp.Result = map[string]interface{}{"tools": s.listTools()}
	case "tools/call":
		result, rpcErr := s.callTool(ctx, req.Params)
		resp.Result, resp.Error = result, rpcErr
	default:
		resp.Error = &Error{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}
	return resp, true
}

func (s *Server) listTools() []ToolDesc {
	tools := s.tools.ListTools()
	out := make([]ToolDesc, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDesc{Name: t.Name, Description: t.Description, InputSchema: t.Parameters.Schema()})
	}
	return out
}

// callTool runs a tool by exact name. Tool failures are results with
// isError set; only protocol problems become JSON-RPC errors.
func (s *Server) callTool(ctx context.Context, params map[string]interface{}) (map[string]interface{}, *Error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, &Error{Code: codeInvalidParams, Message: "missing tool name"}
	}
	if _, ok := s.tools.GetTool(name); !ok {
		return nil, &Error{Code: codeInvalidParams, Message: fmt.Sprintf("%v: %s", domain.ErrToolNotFound, name)}
	}
	args, _ := params["arguments"].(map[string]interface{})
	if convID, _ := params["conversation_id"].(string); convID != "" {
		ctx = services.ContextWithConversation(ctx, domain.ConversationID(convID))
	}

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.tools.Execute(ctx, name, args)
	s.logger.Info("mcp tool call", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "error", errString(err))

	text, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, &Error{Code: codeServerError, Message: marshalErr.Error()}
	}
	if err != nil {
		msg := err.Error()
		if result != nil {
			msg += " " + string(text)
		}
		return map[string]interface{}{
			"content": []map[string]interface{}{{"type": "text", "text": msg}},
			"isError": true,
		}, nil
	}
	return map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": string(text)}},
		"isError": false,
	}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
