package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/you/groupwatch/internal/core"
)

type mapStore struct {
	profiles map[string]core.Profile
	err      error
	calls    []string
}

func (m *mapStore) ProfileByUserID(_ context.Context, id string) (core.Profile, bool, error) {
	m.calls = append(m.calls, id)
	if m.err != nil {
		return core.Profile{}, false, m.err
	}
	p, ok := m.profiles[id]
	return p, ok, nil
}

func human(id int64, username, first, last string) *core.Sender {
	return &core.Sender{Kind: core.SenderHuman, ID: id, Username: username, FirstName: first, LastName: last}
}

func TestResolveStoreRecordWins(t *testing.T) {
	store := &mapStore{profiles: map[string]core.Profile{
		"55": {UserID: "55", Username: "bob_store", Nickname: "Bob"},
	}}
	l := New(store, 0)

	id, outcome, err := l.Resolve(context.Background(), 55, human(55, "bob_tg", "Robert", "Tables"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome != Resolved {
		t.Fatalf("outcome = %v, want resolved", outcome)
	}
	if id.Username != "bob_store" || id.Nickname != "Bob" || id.UserID != "55" || id.Source != core.SourceStore {
		t.Fatalf("unexpected identity %+v", id)
	}
	if len(store.calls) != 1 || store.calls[0] != "55" {
		t.Fatalf("expected lookup by stringified id, got %v", store.calls)
	}
}

func TestResolveOperatorExcluded(t *testing.T) {
	store := &mapStore{profiles: map[string]core.Profile{
		"55": {UserID: "55", Username: "bob", Nickname: "Bob", IsOperator: true},
	}}
	l := New(store, 0)

	for _, sender := range []*core.Sender{nil, human(55, "bob", "Bob", ""), {Kind: core.SenderBot, ID: 55}} {
		_, outcome, err := l.Resolve(context.Background(), 55, sender)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if outcome != Excluded {
			t.Fatalf("outcome = %v, want excluded for sender %+v", outcome, sender)
		}
	}
}

func TestResolveFallbackToProtocol(t *testing.T) {
	l := New(&mapStore{}, 0)

	id, outcome, err := l.Resolve(context.Background(), 7, human(7, "alice", "  Alice", "Smith "))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome != Resolved {
		t.Fatalf("outcome = %v", outcome)
	}
	if id.UserID != "7" || id.Username != "alice" || id.Nickname != "Alice Smith" || id.Source != core.SourceProtocol {
		t.Fatalf("unexpected identity %+v", id)
	}

	id, _, _ = l.Resolve(context.Background(), 8, human(8, "", "", "Solo"))
	if id.Nickname != "Solo" || id.Username != "" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestResolveRejectsNonHumans(t *testing.T) {
	l := New(&mapStore{}, 0)
	cases := map[string]*core.Sender{
		"absent":  nil,
		"bot":     {Kind: core.SenderBot, ID: 1, Username: "helper_bot"},
		"channel": {Kind: core.SenderChannel, ID: 1},
		"unknown": {Kind: core.SenderUnknown, ID: 1},
	}
	for name, sender := range cases {
		t.Run(name, func(t *testing.T) {
			_, outcome, err := l.Resolve(context.Background(), 1, sender)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if outcome != Rejected {
				t.Fatalf("outcome = %v, want rejected", outcome)
			}
		})
	}
}

func TestResolveSkipsStoreWithoutSenderID(t *testing.T) {
	store := &mapStore{}
	l := New(store, 0)
	if _, outcome, _ := l.Resolve(context.Background(), 0, nil); outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", outcome)
	}
	if len(store.calls) != 0 {
		t.Fatalf("expected no store lookup, got %v", store.calls)
	}
}

func TestResolveStoreError(t *testing.T) {
	l := New(&mapStore{err: errors.New("connection reset")}, 0)
	_, outcome, err := l.Resolve(context.Background(), 3, human(3, "c", "C", ""))
	if err == nil {
		t.Fatalf("expected error")
	}
	if outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", outcome)
	}
}

type slowStore struct{}

func (slowStore) ProfileByUserID(ctx context.Context, _ string) (core.Profile, bool, error) {
	<-ctx.Done()
	return core.Profile{}, false, ctx.Err()
}

func TestResolveTimeoutBoundsLookup(t *testing.T) {
	l := New(slowStore{}, 20*time.Millisecond)
	start := time.Now()
	_, _, err := l.Resolve(context.Background(), 3, human(3, "c", "C", ""))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("lookup was not bounded")
	}
}
