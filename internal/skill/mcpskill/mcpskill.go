// Package mcpskill bridges Model Context Protocol (MCP) servers into the
// skill registry. Every tool exposed by a connected server becomes a
// dispatchable skill named "<server>.<tool>", so external tool providers can
// extend the assistant without code changes on this side.
//
// Connections use the official MCP Go SDK over stdio or streamable-HTTP
// transports.
package mcpskill

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxenlabs/voxen/internal/skill"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the unique identifier for this server, used as the skill id
	// prefix and in log messages.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path and optional arguments for the stdio
	// transport, e.g. "/usr/local/bin/home-mcp --config /etc/home.json".
	Command string

	// URL is the endpoint address for the streamable-http transport.
	URL string

	// Env holds additional environment variables injected into the server
	// process for the stdio transport. May be nil.
	Env map[string]string
}

// Bridge manages MCP server sessions and registers their tools as skills.
// Safe for concurrent use.
type Bridge struct {
	mu       sync.Mutex
	client   *mcpsdk.Client
	sessions map[string]*mcpsdk.ClientSession
}

// New creates an empty Bridge.
func New() *Bridge {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "voxen-mcpskill", Version: "1.0.0"},
		nil,
	)
	return &Bridge{
		client:   client,
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// RegisterServer connects to the MCP server described by cfg, lists its
// tools, and registers each one in registry as a skill named
// "<server>.<tool>". Registering a server name twice is an error.
func (b *Bridge) RegisterServer(ctx context.Context, cfg ServerConfig, registry *skill.Registry) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcpskill: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcpskill: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcpskill: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcpskill: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	b.mu.Lock()
	if _, exists := b.sessions[cfg.Name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("mcpskill: server %q already registered", cfg.Name)
	}
	b.mu.Unlock()

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpskill: connect to server %q: %w", cfg.Name, err)
	}

	var tools []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpskill: list tools for server %q: %w", cfg.Name, err)
		}
		tools = append(tools, *tool)
	}

	for _, t := range tools {
		def := skill.Definition{
			ID:          cfg.Name + "." + t.Name,
			Description: t.Description,
			Parameters:  schemaToMap(t.InputSchema),
		}
		handler := &toolHandler{session: session, tool: t.Name}
		if err := registry.Register(def, handler); err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpskill: register tool from server %q: %w", cfg.Name, err)
		}
	}

	b.mu.Lock()
	b.sessions[cfg.Name] = session
	b.mu.Unlock()
	return nil
}

// Close shuts down all server sessions. After Close the bridge's skills will
// fail at execution time; unregister them first if the registry outlives the
// bridge.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, session := range b.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcpskill: close server %q: %w", name, err)
		}
		delete(b.sessions, name)
	}
	return firstErr
}

// toolHandler executes one remote MCP tool. Argument contents pass through
// untyped: the remote server validates them against its own schema.
type toolHandler struct {
	session *mcpsdk.ClientSession
	tool    string
}

var _ skill.Handler = (*toolHandler)(nil)

// Execute implements [skill.Handler].
func (h *toolHandler) Execute(ctx context.Context, args json.RawMessage, _ skill.RequestContext) (skill.Result, error) {
	var argsMap map[string]any
	if len(args) > 0 && string(args) != "{}" && string(args) != "null" {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return skill.Result{}, fmt.Errorf("mcpskill: invalid args for tool %q: %w", h.tool, err)
		}
	}

	res, err := h.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      h.tool,
		Arguments: argsMap,
	})
	if err != nil {
		return skill.Result{}, fmt.Errorf("mcpskill: call tool %q: %w", h.tool, err)
	}

	// Concatenate all text content from the result.
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return skill.Result{}, fmt.Errorf("mcpskill: tool %q reported error: %s", h.tool, sb.String())
	}
	return skill.Result{Content: sb.String()}, nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
