// Package mcp implements a Model Context Protocol server exposing test
// prioritization as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/testfang/internal/observability"
	"github.com/Sumatoshi-tech/testfang/internal/run"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
	"github.com/Sumatoshi-tech/testfang/pkg/version"
)

const (
	serverName = "testfang"
	toolCount  = 4
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use defaults.
type ServerDeps struct {
	// Runner executes prioritize and reduce calls. Nil uses a runner without
	// checkpoints or history.
	Runner *run.Runner

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with the testfang tools.
type Server struct {
	inner    *mcpsdk.Server
	mu       sync.RWMutex
	tools    []string
	runner   *run.Runner
	registry *prioritization.Registry
	metrics  *observability.REDMetrics
	tracer   trace.Tracer
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	runner := deps.Runner
	if runner == nil {
		runner = &run.Runner{Logger: deps.Logger}
	}

	registry := runner.Registry
	if registry == nil {
		registry = prioritization.Default()
	}

	srv := &Server{
		inner:    mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version.Version}, opts),
		tools:    make([]string, 0, toolCount),
		runner:   runner,
		registry: registry,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := slices.Clone(s.tools)
	slices.Sort(names)

	return names
}

// Run serves on stdio until the context is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport until the context is canceled or
// the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	if err := s.inner.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	addTool(s, ToolNamePrioritize, prioritizeToolDescription, s.handlePrioritize)
	addTool(s, ToolNameChangeset, changesetToolDescription, handleChangeset)
	addTool(s, ToolNameAlgorithms, algorithmsToolDescription, s.handleAlgorithms)
	addTool(s, ToolNameReduce, reduceToolDescription, s.handleReduce)
}

type toolHandler[Input any] func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error)

func addTool[Input any](s *Server, name, description string, handler toolHandler[Input]) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, mcpsdk.ToolHandlerFor[Input, ToolOutput](withMetrics(s.metrics, name, withTracing(s.tracer, name, handler))))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

const (
	mcpSpanPrefix  = "mcp."
	traceIDMetaKey = "trace_id"
)

// withTracing wraps a tool handler in a span and appends the trace id to
// the response when the span is sampled.
func withTracing[Input any](tracer trace.Tracer, toolName string, handler toolHandler[Input]) toolHandler[Input] {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		if sc := span.SpanContext(); sc.IsSampled() && result != nil {
			result.Content = append(result.Content, &mcpsdk.TextContent{
				Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String()),
			})
		}

		return result, output, err
	}
}

// withMetrics wraps a tool handler to record RED metrics per invocation.
// Tool results flagged IsError count as failures.
func withMetrics[Input any](metrics *observability.REDMetrics, toolName string, handler toolHandler[Input]) toolHandler[Input] {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		var (
			result *mcpsdk.CallToolResult
			output ToolOutput
		)

		err := metrics.Observe(ctx, mcpSpanPrefix+toolName, func(ctx context.Context) error {
			var handlerErr error

			result, output, handlerErr = handler(ctx, req, input)
			if handlerErr == nil && result != nil && result.IsError {
				return errToolFailed
			}

			return handlerErr
		})
		if err == errToolFailed {
			err = nil
		}

		return result, output, err
	}
}
