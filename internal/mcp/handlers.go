package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
	"github.com/hpungsan/autoledger/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// AppendRequest represents the arguments for ledger_append. Numbers may
// arrive as JSON numbers or numeric strings.
type AppendRequest struct {
	Time       string      `json:"time,omitempty"`
	App        string      `json:"app,omitempty"`
	Amount     json.Number `json:"amount"`
	Currency   string      `json:"currency,omitempty"`
	Merchant   string      `json:"merchant,omitempty"`
	Category   string      `json:"category,omitempty"`
	Note       string      `json:"note,omitempty"`
	Confidence json.Number `json:"confidence,omitempty"`
	Raw        string      `json:"raw,omitempty"`
}

// ListRequest represents the arguments for ledger_list.
type ListRequest struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// GetRequest represents the arguments for ledger_get.
type GetRequest struct {
	Digest string `json:"digest"`
}

// StatsRequest represents the arguments for ledger_stats.
type StatsRequest struct {
	Period string `json:"period,omitempty"`
	Anchor string `json:"anchor,omitempty"`
	Shift  int    `json:"shift,omitempty"`
}

// ExportRequest represents the arguments for ledger_export.
type ExportRequest struct {
	Path   string `json:"path,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// ImportRequest represents the arguments for ledger_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// HistoryRequest represents the arguments for capture_history.
type HistoryRequest struct {
	Outcome string `json:"outcome,omitempty"`
	Source  string `json:"source,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// CaptureTextRequest represents the arguments for capture_text.
type CaptureTextRequest struct {
	Tree  *extract.Node `json:"tree"`
	Parse bool          `json:"parse,omitempty"`
	Save  bool          `json:"save,omitempty"`
}

// HandleAppend handles ledger_append.
func (h *Handlers) HandleAppend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AppendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.Append(ctx, h.cfg, ops.AppendInput{
		Time:       input.Time,
		App:        input.App,
		Amount:     input.Amount.String(),
		Currency:   input.Currency,
		Merchant:   input.Merchant,
		Category:   input.Category,
		Note:       input.Note,
		Confidence: input.Confidence.String(),
		Raw:        input.Raw,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleList handles ledger_list.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.List(ctx, h.cfg, ops.ListInput{
		Prefix: input.Prefix,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleGet handles ledger_get.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.GetRow(ctx, h.cfg, input.Digest)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleStats handles ledger_stats.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.Stats(ctx, h.cfg, ops.StatsInput{
		Period: input.Period,
		Anchor: input.Anchor,
		Shift:  input.Shift,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleExport handles ledger_export.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.Export(ctx, h.cfg, ops.ExportInput{
		Path:   input.Path,
		Prefix: input.Prefix,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleImport handles ledger_import.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.Import(ctx, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleHistory handles capture_history.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.History(ctx, h.db, ops.HistoryInput{
		Outcome: input.Outcome,
		Source:  input.Source,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// HandleCaptureText handles capture_text.
func (h *Handlers) HandleCaptureText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureTextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	output, err := ops.ExtractText(ctx, h.cfg, ops.ExtractTextInput{
		Tree:  input.Tree,
		Parse: input.Parse,
		Save:  input.Save,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(output)
}

// errorResult converts err to an MCP error result. INTERNAL errors never
// carry details.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if lErr, ok := errors.As(err); ok {
		msg := lErr.Message
		if err != error(lErr) {
			msg = err.Error() // keep the wrapping context
		}
		errorObj := map[string]any{
			"code":    lErr.Code,
			"message": msg,
			"status":  lErr.Status,
		}
		if lErr.Code != errors.ErrInternal && lErr.Details != nil {
			errorObj["details"] = lErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
