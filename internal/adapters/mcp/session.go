package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// Transport kinds a target string can resolve to.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Target is a parsed session target.
type Target struct {
	Transport string
	Command   string
	Args      []string
	URL       string
}

// ParseTarget resolves a target string. http(s) URLs use SSE. A single path
// is launched with python when it ends in .py and with node otherwise. Any
// other string is treated as a full command line.
func ParseTarget(target string) (Target, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Target{}, fmt.Errorf("empty session target")
	}

	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Target{Transport: TransportSSE, URL: target}, nil
	}

	fields := strings.Fields(target)
	if len(fields) > 1 {
		return Target{Transport: TransportStdio, Command: fields[0], Args: fields[1:]}, nil
	}

	interpreter := "node"
	if strings.HasSuffix(lower, ".py") {
		interpreter = "python"
	}
	return Target{Transport: TransportStdio, Command: interpreter, Args: []string{target}}, nil
}

// Session implements ports.CapabilitySession over an MCP client.
type Session struct {
	logger *slog.Logger
	env    []string

	mu     sync.RWMutex
	client *client.Client
	target Target
}

var _ ports.CapabilitySession = (*Session)(nil)

// NewSession creates an unconnected session. env is passed to stdio servers.
func NewSession(logger *slog.Logger, env []string) *Session {
	return &Session{logger: logger, env: env}
}

// Connect starts the transport and performs the initialize handshake.
func (s *Session) Connect(ctx context.Context, target string) error {
	t, err := ParseTarget(target)
	if err != nil {
		return err
	}

	var c *client.Client
	switch t.Transport {
	case TransportSSE:
		c, err = client.NewSSEMCPClient(t.URL)
		if err != nil {
			return fmt.Errorf("failed to create SSE client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to start SSE transport: %w", err)
		}
	default:
		c, err = client.NewStdioMCPClient(t.Command, s.env, t.Args...)
		if err != nil {
			return fmt.Errorf("failed to launch %s: %w", t.Command, err)
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "aule-agent",
		Version: "1.0.0",
	}
	info, err := c.Initialize(ctx, initReq)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("initialize handshake failed: %w", err)
	}

	s.mu.Lock()
	old := s.client
	s.client = c
	s.target = t
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	s.logger.Info("capability session connected",
		"transport", t.Transport,
		"server", info.ServerInfo.Name,
		"version", info.ServerInfo.Version,
	)
	return nil
}

func (s *Session) current() (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, domain.ErrNotConnected
	}
	return s.client, nil
}

// ListTools returns the provider's tool descriptions with raw input schemas.
func (s *Session) ListTools(ctx context.Context) ([]ports.RemoteTool, error) {
	c, err := s.current()
	if err != nil {
		return nil, err
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]ports.RemoteTool, 0, len(res.Tools))
	for _, tool := range res.Tools {
		schema, err := inputSchema(tool)
		if err != nil {
			s.logger.Warn("tool schema unreadable, exposing without parameters", "tool", tool.Name, "error", err)
		}
		tools = append(tools, ports.RemoteTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// inputSchema goes through the tool's JSON form so raw and structured
// schemas come out the same way.
func inputSchema(tool mcp.Tool) (map[string]interface{}, error) {
	data, err := json.Marshal(tool)
	if err != nil {
		return nil, err
	}
	var wire struct {
		InputSchema map[string]interface{} `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return wire.InputSchema, nil
}

// CallTool invokes a tool and flattens its text content.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (domain.CallResult, error) {
	c, err := s.current()
	if err != nil {
		return domain.CallResult{}, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return domain.CallResult{}, fmt.Errorf("call %s: %w", name, err)
	}
	return domain.CallResult{
		Text:    flattenContent(res.Content),
		IsError: res.IsError,
	}, nil
}

func flattenContent(contents []mcp.Content) string {
	var parts []string
	for _, content := range contents {
		switch tc := content.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close tears the transport down.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
