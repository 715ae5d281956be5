// Package mcpserver implements a stdio MCP server that exposes the coding
// workflow as the run_code_agent tool and the create_repo prompt.
// Messages are line-delimited JSON-RPC 2.0.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"openswe/pkg/logx"
	"openswe/pkg/state"
	"openswe/pkg/version"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Tool and prompt names.
const (
	ToolRunCodeAgent = "run_code_agent"
	PromptCreateRepo = "create_repo"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// maxMessageSize bounds one incoming JSON-RPC line.
const maxMessageSize = 4 * 1024 * 1024

// Runner executes one coding request to completion.
type Runner interface {
	Run(ctx context.Context, request string) state.State
}

// Server answers MCP requests by running the workflow.
type Server struct {
	runner  Runner
	logger  *logx.Logger
	name    string
	version string
	mu      sync.Mutex // serialises writes
}

// NewServer creates a server that hands run_code_agent requests to runner.
func NewServer(runner Runner, logger *logx.Logger) *Server {
	if logger == nil {
		logger = logx.NewLogger("mcp-server")
	}
	return &Server{
		runner:  runner,
		logger:  logger,
		name:    "openswe",
		version: version.Version,
	}
}

// Serve reads requests from r and writes responses to w until r is exhausted or
// ctx is cancelled. Requests are handled one at a time.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	s.logger.Info("MCP server ready on stdio")
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("server context cancelled: %w", err)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var request JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &request); err != nil {
			s.sendError(w, nil, codeParseError, "Parse error", err.Error())
			continue
		}
		if request.Method == "" {
			s.sendError(w, request.ID, codeInvalidRequest, "Invalid request", "method is required")
			continue
		}

		s.handleRequest(ctx, w, &request)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	s.logger.Info("MCP client closed the connection")
	return nil
}

// handleRequest dispatches a JSON-RPC request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, w io.Writer, req *JSONRPCRequest) {
	// Notifications carry no id and get no response.
	if req.ID == nil {
		s.logger.Debug("notification: %s", req.Method)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "ping":
		s.sendResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(ctx, w, req)
	case "prompts/list":
		s.handlePromptsList(w, req)
	case "prompts/get":
		s.handlePromptsGet(w, req)
	default:
		s.sendError(w, req.ID, codeMethodNotFound, "Method not found", req.Method)
	}
}

// handleInitialize responds to the MCP initialize request.
func (s *Server) handleInitialize(w io.Writer, req *JSONRPCRequest) {
	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":   map[string]any{},
			"prompts": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
	s.sendResult(w, req.ID, result)
}

// handleToolsList returns the list of available tools.
func (s *Server) handleToolsList(w io.Writer, req *JSONRPCRequest) {
	tool := map[string]any{
		"name": ToolRunCodeAgent,
		"description": "Given a coding request, runs the openswe manager/planner/programmer agents " +
			"and writes the generated project to disk. Returns the run summary.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{
					"type":        "string",
					"description": "Natural-language description of the code to create",
				},
			},
			"required": []string{"request"},
		},
	}
	s.sendResult(w, req.ID, map[string]any{"tools": []any{tool}})
}

// handleToolsCall runs the workflow and returns its summary as tool content.
func (s *Server) handleToolsCall(ctx context.Context, w io.Writer, req *JSONRPCRequest) {
	var params struct {
		Arguments map[string]any `json:"arguments"`
		Name      string         `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(w, req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}

	if params.Name != ToolRunCodeAgent {
		s.logger.Warn("Tool not found: %s", params.Name)
		s.sendError(w, req.ID, codeInvalidParams, "Tool not found", params.Name)
		return
	}

	request, _ := params.Arguments["request"].(string)
	if strings.TrimSpace(request) == "" {
		s.sendResult(w, req.ID, textResult("Error: request is required", true))
		return
	}

	s.logger.Info("MCP tool call: %s", params.Name)
	final := s.runner.Run(ctx, request)
	s.logger.Info("MCP tool %s finished with status %s", params.Name, final.Status)

	s.sendResult(w, req.ID, textResult(FormatSummary(&final), final.Status == state.StatusError))
}

// handlePromptsList returns the list of available prompts.
func (s *Server) handlePromptsList(w io.Writer, req *JSONRPCRequest) {
	prompt := map[string]any{
		"name":        PromptCreateRepo,
		"description": "Generate a prompt for creating a GitHub repository from a generated project",
		"arguments": []any{
			map[string]any{
				"name":        "location",
				"description": "Folder holding the generated files",
				"required":    false,
			},
		},
	}
	s.sendResult(w, req.ID, map[string]any{"prompts": []any{prompt}})
}

// handlePromptsGet renders a prompt.
func (s *Server) handlePromptsGet(w io.Writer, req *JSONRPCRequest) {
	var params struct {
		Arguments map[string]string `json:"arguments"`
		Name      string            `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(w, req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	if params.Name != PromptCreateRepo {
		s.sendError(w, req.ID, codeInvalidParams, "Prompt not found", params.Name)
		return
	}

	s.sendResult(w, req.ID, map[string]any{
		"description": "Create a GitHub repository from generated files",
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": map[string]any{
					"type": "text",
					"text": CreateRepoPrompt(params.Arguments["location"]),
				},
			},
		},
	})
}

// CreateRepoPrompt is the create_repo prompt text. An empty location becomes "folder".
func CreateRepoPrompt(location string) string {
	if strings.TrimSpace(location) == "" {
		location = "folder"
	}
	return fmt.Sprintf("Create a new GitHub repository using the GitHub MCP server "+
		"using the files located here %s. The repository should be named appropriately "+
		"and should include a README.md file with a brief description of the project. "+
		"It should also include a requirements.txt file with the necessary dependencies "+
		"for the project and a License file.", location)
}

// FormatSummary renders a final state as plain text for MCP clients.
func FormatSummary(st *state.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", st.Status)
	if st.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", st.RunID)
	}
	if st.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error: %s\n", st.ErrorMessage)
	}
	fmt.Fprintf(&b, "Iterations: %d\n", st.IterationCount)

	if len(st.FilesCreated) > 0 {
		b.WriteString("Files created:\n")
		for _, f := range st.FilesCreated {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	} else {
		b.WriteString("Files created: none\n")
	}

	if st.Plan != nil && *st.Plan != "" {
		fmt.Fprintf(&b, "\nPlan:\n%s\n", *st.Plan)
	}
	return b.String()
}

func textResult(text string, isError bool) map[string]any {
	result := map[string]any{
		"content": []map[string]any{
			{
				"type": "text",
				"text": text,
			},
		},
	}
	if isError {
		result["isError"] = true
	}
	return result
}

// JSON-RPC message types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	ID      any             `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	JSONRPC string        `json:"jsonrpc"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// sendResult sends a successful JSON-RPC response.
func (s *Server) sendResult(w io.Writer, id, result any) {
	s.send(w, &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendError sends an error JSON-RPC response.
func (s *Server) sendError(w io.Writer, id any, code int, message, data string) {
	s.send(w, &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// send marshals and writes a response as one line.
func (s *Server) send(w io.Writer, response *JSONRPCResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal response: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := w.Write(append(data, '\n')); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Debug("Failed to write response: %v", err)
	}
}
