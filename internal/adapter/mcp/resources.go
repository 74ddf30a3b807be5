package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/service"
)

// Resource URIs.
const (
	ResourceSession   = "repo-oracle://session"
	ResourceRateLimit = "repo-oracle://rate-limit"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			ResourceSession,
			"Connected Repository",
			mcplib.WithResourceDescription("The repository set by connect_repo"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSessionResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			ResourceRateLimit,
			"GitHub Rate Limit",
			mcplib.WithResourceDescription("Rate-limit state observed on the last live GitHub response"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRateLimitResource,
	)
}

func (s *Server) handleSessionResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Session == nil {
		return jsonContents(req.Params.URI, `{"error":"session not configured"}`), nil
	}
	ref, ok := s.deps.Session.Current()
	data, err := json.Marshal(report.Connected{Connected: ok, Owner: ref.Owner, Repo: ref.Name})
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func (s *Server) handleRateLimitResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Rate == nil {
		return jsonContents(req.Params.URI, `{"error":"rate reader not configured"}`), nil
	}
	data, err := json.Marshal(service.RateLimitReport(s.deps.Rate.RateStatus()))
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func jsonContents(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
