// Package supervisor runs one protocol session per configured account and
// routes its events, in arrival order, to the account's handler.
package supervisor

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/telegram"
)

type State int

const (
	Connecting State = iota
	Authorized
	Listening
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authorized:
		return "authorized"
	case Listening:
		return "listening"
	case Disconnected:
		return "disconnected"
	default:
		return "failed"
	}
}

// Terminal reports whether the supervisor has stopped for good.
func (s State) Terminal() bool { return s == Disconnected || s == Failed }

// Session is a connected protocol account.
type Session interface {
	Run(ctx context.Context, h telegram.Hooks) error
}

// Handler consumes one event. It is never called concurrently for the same
// account.
type Handler interface {
	Handle(ctx context.Context, ev core.InboundEvent) bool
}

type Observer interface {
	SetAccountState(account, prev, state string)
	IncEventsSeen(account string)
}

const defaultQueueSize = 256

type Options struct {
	QueueSize int
	Observer  Observer
}

// Status is a point-in-time view for the status API.
type Status struct {
	Account string    `json:"account"`
	Role    string    `json:"role"`
	State   string    `json:"state"`
	Since   time.Time `json:"since"`
	SelfID  int64     `json:"self_id,omitempty"`
	Events  int64     `json:"events"`
	Error   string    `json:"error,omitempty"`
}

type Supervisor struct {
	account  core.AccountConfig
	label    string
	session  Session
	handler  Handler
	observer Observer
	events   chan core.InboundEvent

	mu      sync.RWMutex
	state   State
	since   time.Time
	selfID  int64
	lastErr error

	seen atomic.Int64
}

// New picks the handler from the account role: keywords accounts use
// keywords, allMessages accounts use the passthrough logger.
func New(account core.AccountConfig, session Session, keywords Handler, opts Options) *Supervisor {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	var handler Handler = Passthrough{}
	if account.Role == core.RoleKeywords {
		handler = keywords
	}
	return &Supervisor{
		account:  account,
		label:    account.Label(),
		session:  session,
		handler:  handler,
		observer: opts.Observer,
		events:   make(chan core.InboundEvent, size),
		state:    Connecting,
		since:    time.Now(),
	}
}

func (s *Supervisor) Account() string { return s.label }

// Run blocks until the session ends. The returned error is nil when ctx was
// cancelled. No reconnect is attempted.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(Connecting, nil)
	log.Printf("supervisor: %s connecting (role=%s)", s.label, s.account.Role)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.work(ctx, stop)
	}()

	err := s.session.Run(ctx, telegram.Hooks{
		OnAuthorized: func(selfID int64) {
			s.mu.Lock()
			s.selfID = selfID
			s.mu.Unlock()
			s.setState(Authorized, nil)
			log.Printf("supervisor: %s authorized as %d", s.label, selfID)
		},
		OnListening: func() {
			s.setState(Listening, nil)
			log.Printf("supervisor: %s listening", s.label)
		},
		OnEvent: func(evCtx context.Context, ev core.InboundEvent) {
			s.enqueue(evCtx, stop, ev)
		},
	})
	close(stop)
	<-done

	switch {
	case ctx.Err() != nil:
		s.setState(Disconnected, nil)
		log.Printf("supervisor: %s stopped", s.label)
		return nil
	case errors.Is(err, telegram.ErrNotAuthorized):
		s.setState(Failed, err)
		log.Printf("supervisor: %s failed: %v", s.label, err)
		return err
	case err == nil:
		s.setState(Disconnected, nil)
		log.Printf("supervisor: %s disconnected", s.label)
		return nil
	case s.State() == Listening:
		s.setState(Disconnected, err)
		log.Printf("supervisor: %s disconnected: %v", s.label, err)
		return err
	default:
		s.setState(Failed, err)
		log.Printf("supervisor: %s failed: %v", s.label, err)
		return err
	}
}

func (s *Supervisor) enqueue(ctx context.Context, stop <-chan struct{}, ev core.InboundEvent) {
	if s.observer != nil {
		s.observer.IncEventsSeen(s.label)
	}
	s.seen.Add(1)
	select {
	case s.events <- ev:
	case <-ctx.Done():
	case <-stop:
	}
}

// work is the only consumer of s.events, which keeps per-account order.
func (s *Supervisor) work(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handler.Handle(ctx, ev)
		case <-stop:
			for {
				select {
				case ev := <-s.events:
					if ctx.Err() != nil {
						return
					}
					s.handler.Handle(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) setState(next State, err error) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.since = time.Now()
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()

	if s.observer != nil {
		prevLabel := prev.String()
		if prev == next {
			prevLabel = ""
		}
		s.observer.SetAccountState(s.label, prevLabel, next.String())
	}
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Account: s.label,
		Role:    s.account.Role.String(),
		State:   s.state.String(),
		Since:   s.since,
		SelfID:  s.selfID,
		Events:  s.seen.Load(),
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}
