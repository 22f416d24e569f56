package forward

import (
	"context"

	"github.com/you/groupwatch/internal/core"
)

type broadcaster interface {
	Broadcast(core.ForwardPayload)
}

// WithTap mirrors every forwarded payload to live stream subscribers.
type WithTap struct {
	Forwarder
	tap broadcaster
}

func Tap(base Forwarder, tap broadcaster) *WithTap {
	return &WithTap{Forwarder: base, tap: tap}
}

func (w *WithTap) Forward(ctx context.Context, payload core.ForwardPayload) {
	w.Forwarder.Forward(ctx, payload)
	if w.tap != nil {
		w.tap.Broadcast(payload)
	}
}
