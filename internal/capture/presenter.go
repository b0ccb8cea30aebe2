package capture

import (
	"context"
	"log/slog"
)

// ChannelPresenter forwards outcomes to a buffered channel. When the buffer
// is full the outcome is dropped and logged rather than stalling the
// sequencer.
type ChannelPresenter struct {
	C   chan Outcome
	log *slog.Logger
}

// NewChannelPresenter returns a presenter with a buffer of size n.
func NewChannelPresenter(n int, logger *slog.Logger) *ChannelPresenter {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelPresenter{C: make(chan Outcome, n), log: logger}
}

// Present implements Presenter.
func (p *ChannelPresenter) Present(_ context.Context, o Outcome) {
	select {
	case p.C <- o:
	default:
		p.log.Warn("outcome dropped: presenter buffer full", "state", o.State, "reason", o.Reason)
	}
}

// MultiPresenter fans an outcome out to several presenters in order.
type MultiPresenter []Presenter

// Present implements Presenter.
func (m MultiPresenter) Present(ctx context.Context, o Outcome) {
	for _, p := range m {
		if p != nil {
			p.Present(ctx, o)
		}
	}
}
