// Package filter decides which inbound group messages are forwarded.
package filter

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/ingesttrace"
	"github.com/you/groupwatch/internal/profile"
)

// Reason names the stage that dropped an event. Pass means forwarded.
type Reason string

const (
	Pass              Reason = ""
	NotGroup          Reason = "not_group"
	NotWatched        Reason = "not_watched"
	ContentShape      Reason = "content_shape"
	LookupError       Reason = "lookup_error"
	Excluded          Reason = "excluded"
	RejectedSender    Reason = "rejected_sender"
	NoUsername        Reason = "no_username"
	NicknameBlacklist Reason = "nickname_blacklist"
)

const (
	DefaultMaxTextLen  = 16
	DefaultMaxNewlines = 1
)

// DefaultBlacklist holds the role markers of finance and support staff.
var DefaultBlacklist = []string{"财务", "客服"}

type WatchSet interface {
	IsWatched(raw int64) bool
}

type Resolver interface {
	Resolve(ctx context.Context, senderID int64, sender *core.Sender) (core.ResolvedIdentity, profile.Outcome, error)
}

type Forwarder interface {
	Forward(ctx context.Context, payload core.ForwardPayload)
}

type Metrics interface {
	IncDropped(reason string)
	IncLookupErrors()
}

// Options tune the pipeline. Zero values select the defaults.
type Options struct {
	MaxTextLen   int
	MaxNewlines  int
	Blacklist    []string
	Metrics      Metrics
	VerboseDrops bool
	Trace        bool
}

type Pipeline struct {
	watch     WatchSet
	resolver  Resolver
	forwarder Forwarder
	metrics   Metrics

	maxTextLen  int
	maxNewlines int
	blacklist   []string
	trace       bool

	drops *dropLogger
}

func New(watch WatchSet, resolver Resolver, forwarder Forwarder, opts Options) *Pipeline {
	if opts.MaxTextLen <= 0 {
		opts.MaxTextLen = DefaultMaxTextLen
	}
	if opts.MaxNewlines <= 0 {
		opts.MaxNewlines = DefaultMaxNewlines
	}
	if opts.Blacklist == nil {
		opts.Blacklist = DefaultBlacklist
	}
	blacklist := make([]string, 0, len(opts.Blacklist))
	for _, marker := range opts.Blacklist {
		if marker = strings.TrimSpace(marker); marker != "" {
			blacklist = append(blacklist, marker)
		}
	}
	return &Pipeline{
		watch:       watch,
		resolver:    resolver,
		forwarder:   forwarder,
		metrics:     opts.Metrics,
		maxTextLen:  opts.MaxTextLen,
		maxNewlines: opts.MaxNewlines,
		blacklist:   blacklist,
		trace:       opts.Trace,
		drops:       newDropLogger(time.Now(), opts.VerboseDrops, dropSummaryInterval),
	}
}

// Evaluate runs the stages in order and stops at the first drop. Structural
// checks run before the profile lookup so dropped events never hit the store.
func (p *Pipeline) Evaluate(ctx context.Context, ev core.InboundEvent) (core.ForwardPayload, Reason) {
	if ev.Kind != core.KindGroup {
		return core.ForwardPayload{}, NotGroup
	}
	if p.watch == nil || !p.watch.IsWatched(ev.ChatID) {
		return core.ForwardPayload{}, NotWatched
	}
	if !p.shapeOK(ev.Text) {
		return core.ForwardPayload{}, ContentShape
	}

	identity, outcome, err := p.resolver.Resolve(ctx, ev.SenderID, ev.Sender)
	if err != nil {
		slog.Warn("filter: profile lookup failed",
			"account", ev.Account,
			"group_id", ev.GroupID(),
			"sender_id", ev.SenderID,
			"err", err,
		)
		if p.metrics != nil {
			p.metrics.IncLookupErrors()
		}
		return core.ForwardPayload{}, LookupError
	}
	switch outcome {
	case profile.Excluded:
		return core.ForwardPayload{}, Excluded
	case profile.Rejected:
		return core.ForwardPayload{}, RejectedSender
	}

	if identity.Username == "" {
		return core.ForwardPayload{}, NoUsername
	}
	for _, marker := range p.blacklist {
		if strings.Contains(identity.Nickname, marker) {
			return core.ForwardPayload{}, NicknameBlacklist
		}
	}

	return core.ForwardPayload{
		GroupID:      ev.GroupID(),
		GroupName:    ev.ChatTitle,
		UserID:       identity.UserID,
		Username:     identity.Username,
		Nickname:     identity.Nickname,
		Message:      ev.Text,
		SendDateTime: core.FormatSendTime(ev.Date),
	}, Pass
}

// Handle evaluates ev and forwards it when every stage passes.
func (p *Pipeline) Handle(ctx context.Context, ev core.InboundEvent) bool {
	var tr *ingesttrace.EventTrace
	if p.trace {
		tr = ingesttrace.FromEvent(ev)
		defer tr.LogTrace(nil, "filter: trace")
	}

	payload, reason := p.Evaluate(ctx, ev)
	if reason != Pass {
		if p.metrics != nil {
			p.metrics.IncDropped(string(reason))
		}
		p.drops.note(time.Now(), reason, ev)
		if tr != nil {
			tr.IncCounter(ingesttrace.StageDropped(string(reason)))
		}
		return false
	}
	if p.forwarder != nil {
		p.forwarder.Forward(ctx, payload)
	}
	if tr != nil {
		tr.IncCounter(ingesttrace.StageForwarded)
	}
	return true
}

// FlushDrops emits any pending drop summaries.
func (p *Pipeline) FlushDrops() {
	p.drops.flush(time.Now())
}

func (p *Pipeline) shapeOK(text string) bool {
	if utf8.RuneCountInString(text) > p.maxTextLen {
		return false
	}
	return strings.Count(text, "\n") <= p.maxNewlines
}
