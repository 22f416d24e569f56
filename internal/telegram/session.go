// Package telegram connects one user account through gotd/td and delivers
// its new-message updates as core.InboundEvent values.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/you/groupwatch/internal/core"
)

// ErrNotAuthorized means the stored session cannot be used without an
// interactive login (missing session, logged out, or 2FA pending).
var ErrNotAuthorized = errors.New("telegram: session not authorized")

// Hooks receive session lifecycle notifications and events. OnEvent is
// called from the protocol's update goroutine; it may block to apply
// backpressure.
type Hooks struct {
	OnAuthorized func(selfID int64)
	OnListening  func()
	OnEvent      func(ctx context.Context, ev core.InboundEvent)
}

type Options struct {
	Logger *zap.Logger
}

type Session struct {
	account core.AccountConfig
	logger  *zap.Logger
}

func New(account core.AccountConfig, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		account: account,
		logger:  logger.Named("telegram").With(zap.String("account", account.Label())),
	}
}

// Run connects, verifies authorization and listens until ctx ends or the
// connection fails.
func (s *Session) Run(ctx context.Context, h Hooks) error {
	if _, err := os.Stat(s.account.Session); err != nil {
		return fmt.Errorf("%w: session %s: %v", ErrNotAuthorized, s.account.Session, err)
	}

	label := s.account.Label()
	dispatcher := tg.NewUpdateDispatcher()
	gaps := updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  s.logger.Named("gaps"),
	})

	deliver := func(ctx context.Context, e tg.Entities, msg tg.MessageClass) {
		ev, ok := Convert(label, msg, e)
		if !ok || h.OnEvent == nil {
			return
		}
		h.OnEvent(ctx, ev)
	}
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		deliver(ctx, e, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		deliver(ctx, e, u.Message)
		return nil
	})

	client := telegram.NewClient(s.account.APIID, s.account.APIHash, telegram.Options{
		Logger:         s.logger,
		SessionStorage: &session.FileStorage{Path: s.account.Session},
		UpdateHandler:  gaps,
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("telegram: auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("telegram: self: %w", err)
		}
		if h.OnAuthorized != nil {
			h.OnAuthorized(self.ID)
		}
		return gaps.Run(ctx, client.API(), self.ID, updates.AuthOptions{
			OnStart: func(context.Context) {
				if h.OnListening != nil {
					h.OnListening()
				}
			},
		})
	})
}
