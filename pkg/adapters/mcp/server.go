// Package mcp exposes a Strata system as a Model Context Protocol server, so
// agents can compose prompts and inspect the rule corpus as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	targetsURI = "strata://targets"
	reportURI  = "strata://validation"
)

// GenerateResponse is the structured result of the generate_prompt tool.
type GenerateResponse struct {
	Task        string              `json:"task" jsonschema_description:"The generated task"`
	Target      string              `json:"target" jsonschema_description:"The framing target"`
	Prompt      string              `json:"prompt" jsonschema_description:"The framed prompt text"`
	Cached      bool                `json:"cached" jsonschema_description:"Whether the rule tree came from cache"`
	Diagnostics []domain.Diagnostic `json:"diagnostics" jsonschema_description:"Rules that failed to render and were emitted raw"`
}

// Engine defines the operations of the Strata system exposed as MCP tools.
type Engine interface {
	Generate(ctx context.Context, taskName string, vars map[string]any, target string) (*domain.Generation, error)
	Dependencies(ctx context.Context, kind domain.Kind, name string) ([]domain.Dependency, error)
	ValidateAll(ctx context.Context) *domain.Report
	CheckConflicts(ctx context.Context) ([]domain.Conflict, error)
	CacheStats() cache.Stats
	Targets() []string
}

var _ Engine = (*strata.System)(nil)

// Server wraps an Engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	logger    *zap.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Under stdio it must not write to stdout.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server over engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("strata-mcp", strings.TrimSpace(strata.Version),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves on addr using server-sent events until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", zap.String("address", addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "could not stop MCP server gracefully")
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("generate_prompt",
		mcp.WithDescription("Compose the prompt of a task rule from its semantic and primitive rules."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Name of the task rule")),
		mcp.WithString("variables", mcp.Description("JSON object of template variables (optional)")),
		mcp.WithString("target", mcp.Description("Output framing: plain, claude, gpt or gemini (optional)")),
	), s.handleGenerate)

	s.mcpServer.AddTool(mcp.NewTool("get_dependencies",
		mcp.WithDescription("List every rule below the named rule, depth first."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Rule kind: task, semantic or primitive")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule name")),
	), s.handleDependencies)

	s.mcpServer.AddTool(mcp.NewTool("validate_rules",
		mcp.WithDescription("Run every validation check over the rule corpus."),
	), s.handleValidate)

	s.mcpServer.AddTool(mcp.NewTool("check_conflicts",
		mcp.WithDescription("Report rules of the same kind that share a name."),
	), s.handleConflicts)

	s.mcpServer.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Report the resolution cache usage."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.engine.CacheStats())
	})
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := request.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	vars := map[string]any{}
	if raw := request.GetString("variables", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("variables must be a JSON object: %v", err)), nil
		}
	}

	gen, err := s.engine.Generate(ctx, task, vars, request.GetString("target", ""))
	if err != nil {
		s.logger.Debug("generate_prompt failed", zap.String("task", task), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("generate failed: %v", err)), nil
	}

	diagnostics := gen.Diagnostics
	if diagnostics == nil {
		diagnostics = []domain.Diagnostic{}
	}
	return jsonResult(GenerateResponse{
		Task:        gen.TaskName,
		Target:      gen.Target,
		Prompt:      gen.Text,
		Cached:      gen.Cached,
		Diagnostics: diagnostics,
	})
}

func (s *Server) handleDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawKind, err := request.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := domain.ParseKind(rawKind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	deps, err := s.engine.Dependencies(ctx, kind, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("dependencies failed: %v", err)), nil
	}
	return jsonResult(deps)
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.ValidateAll(ctx))
}

func (s *Server) handleConflicts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conflicts, err := s.engine.CheckConflicts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("conflict check failed: %v", err)), nil
	}
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}
	return jsonResult(conflicts)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(targetsURI, "Output framing targets",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(targetsURI, s.engine.Targets())
	})

	s.mcpServer.AddResource(mcp.NewResource(reportURI, "Validation report of the rule corpus",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(reportURI, s.engine.ValidateAll(ctx))
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", uri)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
