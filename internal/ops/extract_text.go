package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
)

// ExtractTextInput contains parameters for the ExtractText operation.
type ExtractTextInput struct {
	Tree  *extract.Node
	Parse bool
	Save  bool // requires Parse
	Now   time.Time

	Logger *slog.Logger
}

// ExtractTextOutput contains the result of the ExtractText operation.
type ExtractTextOutput struct {
	Surface string `json:"surface,omitempty"`
	Text    string `json:"text"`
	Chars   int    `json:"chars"`
	Suggested
}

// ExtractText runs the content extractor over a supplied tree without
// driving a capture cycle. An excluded or empty surface is EXTRACTION_EMPTY.
func ExtractText(ctx context.Context, cfg *config.Config, input ExtractTextInput) (*ExtractTextOutput, error) {
	if input.Tree == nil {
		return nil, errors.NewInvalidRequest("tree is required")
	}
	if input.Save && !input.Parse {
		return nil, errors.NewInvalidRequest("save requires parse")
	}
	logger := input.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	filter := capture.OptionsFromConfig(cfg).Filter
	text := filter.ExtractSurface(input.Tree)
	if text == "" {
		return nil, errors.NewExtractionEmpty(input.Tree.SurfaceID)
	}

	output := &ExtractTextOutput{
		Surface: input.Tree.SurfaceID,
		Text:    text,
		Chars:   len([]rune(text)),
	}
	if input.Parse {
		out := capture.Outcome{
			Source:  capture.SourceHotkey,
			State:   capture.StateDelivered,
			Surface: input.Tree.SurfaceID,
			Content: capture.Text{Text: text},
			At:      now,
		}
		if err := suggest(ctx, cfg, "", out, input.Save, &output.Suggested, logger); err != nil {
			return nil, err
		}
	}
	return output, nil
}
