package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/internal/presentation/graph"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
	"github.com/vinculobrasil/flowbot/pkg/runner"
	"golang.org/x/sync/errgroup"
)

const flowURIPrefix = "flowbot://flows/"

// Server exposes a Conversation as an MCP server, so an assistant can
// drive and inspect flows.
type Server struct {
	conv      ports.Conversation
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer registers the flowbot tools and resources on a new MCP server.
func NewServer(conv ports.Conversation, version string, opts ...Option) *Server {
	s := &Server{
		conv:   conv,
		logger: logging.NewNop(),
		mcpServer: server.NewMCPServer("flowbot-mcp", strings.TrimSpace(version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves JSON-RPC on stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, os.Stdin, os.Stdout)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("mcp server listening (sse)", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop mcp server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type SendMessageArgs struct {
	FlowID       string `json:"flow_id"`
	SessionID    string `json:"session_id"`
	Text         string `json:"text"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
}

type GetGraphArgs struct {
	FlowID    string `json:"flow_id"`
	Format    string `json:"format,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type SessionArgs struct {
	SessionID string `json:"session_id"`
}

type FlowList struct {
	Flows []string `json:"flows"`
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send one inbound message to a session and run a turn. Returns the bot replies and the session status."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow to run")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation id, usually the contact phone")),
		mcp.WithString("text", mcp.Description("Message text; empty re-sends the pending prompt")),
		mcp.WithString("contact_phone", mcp.Description("Contact phone (optional)")),
		mcp.WithString("contact_name", mcp.Description("Contact display name (optional)")),
		mcp.WithOutputSchema[domain.TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get a flow graph as JSON, or as Mermaid with format=mermaid."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow id")),
		mcp.WithString("format", mcp.Enum("json", "mermaid"), mcp.Description("Output format (default json)")),
		mcp.WithString("session_id", mcp.Description("Highlight this session's path in Mermaid output")),
	), s.handleGetGraph)

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Inspect the stored state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[domain.Session](),
	), mcp.NewStructuredToolHandler(s.handleGetSession))

	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List the flow ids available to send_message."),
		mcp.WithOutputSchema[FlowList](),
	), mcp.NewStructuredToolHandler(s.handleListFlows))
}

func (s *Server) handleSendMessage(ctx context.Context, _ mcp.CallToolRequest, args SendMessageArgs) (domain.TurnResult, error) {
	text, err := runner.SanitizeInput(args.Text)
	if err != nil {
		s.logger.Warn("mcp input rejected", "session_id", args.SessionID, "size", len(args.Text), "err", err)
		return domain.TurnResult{}, fmt.Errorf("input rejected: %w", err)
	}
	res, err := s.conv.Handle(ctx, domain.Inbound{
		FlowID:    args.FlowID,
		SessionID: args.SessionID,
		Contact:   domain.Contact{Phone: args.ContactPhone, Name: args.ContactName},
		Text:      text,
	})
	if err != nil && res == nil {
		return domain.TurnResult{}, err
	}
	if err != nil {
		// The partial result already carries the failure in res.Error.
		s.logger.Error("mcp turn failed", "session_id", args.SessionID, "err", err)
	}
	return *res, nil
}

func (s *Server) handleGetGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args GetGraphArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	g, err := s.conv.Flow(ctx, args.FlowID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Format != "mermaid" {
		data, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}

	var overlay *graph.GraphOverlay
	if args.SessionID != "" {
		sess, err := s.conv.Session(ctx, args.SessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		overlay = graph.OverlayFromSession(sess)
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(g, overlay)), nil
}

func (s *Server) handleGetSession(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (domain.Session, error) {
	sess, err := s.conv.Session(ctx, args.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return *sess, nil
}

func (s *Server) handleListFlows(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (FlowList, error) {
	ids, err := s.conv.Flows(ctx)
	if err != nil {
		return FlowList{}, err
	}
	if ids == nil {
		ids = []string{}
	}
	return FlowList{Flows: ids}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(flowURIPrefix+"{id}", "Flow graph",
		mcp.WithTemplateDescription("The JSON graph of a flow"),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := strings.TrimPrefix(req.Params.URI, flowURIPrefix)
		g, err := s.conv.Flow(ctx, id)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
