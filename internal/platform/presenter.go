package platform

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/hpungsan/autoledger/internal/capture"
)

// JSONPresenter writes each outcome as one JSON line.
type JSONPresenter struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *slog.Logger
}

// NewJSONPresenter returns a presenter writing to w.
func NewJSONPresenter(w io.Writer, logger *slog.Logger) *JSONPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONPresenter{enc: json.NewEncoder(w), log: logger}
}

// Present implements capture.Presenter.
func (p *JSONPresenter) Present(_ context.Context, o capture.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(o.View()); err != nil {
		p.log.Error("outcome not written", "error", err)
	}
}
