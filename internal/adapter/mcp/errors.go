package mcp

import (
	"encoding/json"
	"errors"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/repo-oracle/internal/domain"
)

// ToolError is the JSON body of a failed tool call.
type ToolError struct {
	Error ToolErrorDetail `json:"error"`
}

// ToolErrorDetail classifies a failure for the MCP host.
type ToolErrorDetail struct {
	Kind       string     `json:"kind"`
	SubKind    string     `json:"sub_kind,omitempty"`
	Message    string     `json:"message"`
	StatusCode int        `json:"status_code,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

// toolError renders err as an isError tool result. redact, when set,
// scrubs credentials from the message.
func toolError(err error, redact func(string) string) *mcplib.CallToolResult {
	msg := err.Error()
	if redact != nil {
		msg = redact(msg)
	}
	detail := ToolErrorDetail{
		Kind:    string(domain.KindOf(err)),
		SubKind: string(domain.SubKindOf(err)),
		Message: msg,
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		detail.StatusCode = upstream.StatusCode
		if !upstream.ResetAt.IsZero() {
			reset := upstream.ResetAt.UTC()
			detail.ResetAt = &reset
		}
	}

	data, mErr := json.Marshal(ToolError{Error: detail})
	if mErr != nil {
		return mcplib.NewToolResultError(msg)
	}
	return mcplib.NewToolResultError(string(data))
}

// toolResultJSON renders v as a JSON text result.
func toolResultJSON(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(err, nil)
	}
	return mcplib.NewToolResultText(string(data))
}
