// Package profile resolves the canonical identity of a message sender.
package profile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/you/groupwatch/internal/core"
)

// Outcome is the result class of a resolution.
type Outcome int

const (
	Resolved Outcome = iota
	Excluded
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Excluded:
		return "excluded"
	default:
		return "rejected"
	}
}

// Store looks up operator-managed profiles by canonical user id.
type Store interface {
	ProfileByUserID(ctx context.Context, userID string) (core.Profile, bool, error)
}

type Lookup struct {
	store   Store
	timeout time.Duration
}

// New returns a Lookup. A positive timeout bounds each store query.
func New(store Store, timeout time.Duration) *Lookup {
	return &Lookup{store: store, timeout: timeout}
}

// Resolve prefers the store's record over protocol data. Without a record
// only human senders are accepted.
func (l *Lookup) Resolve(ctx context.Context, senderID int64, sender *core.Sender) (core.ResolvedIdentity, Outcome, error) {
	if senderID != 0 && l.store != nil {
		lookupCtx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}

		rec, found, err := l.store.ProfileByUserID(lookupCtx, strconv.FormatInt(senderID, 10))
		if err != nil {
			return core.ResolvedIdentity{}, Rejected, fmt.Errorf("profile: lookup %d: %w", senderID, err)
		}
		if found {
			if rec.IsOperator {
				return core.ResolvedIdentity{UserID: rec.UserID, IsOperator: true, Source: core.SourceStore}, Excluded, nil
			}
			return core.ResolvedIdentity{
				UserID:   rec.UserID,
				Username: rec.Username,
				Nickname: rec.Nickname,
				Source:   core.SourceStore,
			}, Resolved, nil
		}
	}

	if sender == nil || sender.Kind != core.SenderHuman {
		return core.ResolvedIdentity{}, Rejected, nil
	}

	return core.ResolvedIdentity{
		UserID:   strconv.FormatInt(sender.ID, 10),
		Username: sender.Username,
		Nickname: Nickname(sender.FirstName, sender.LastName),
		Source:   core.SourceProtocol,
	}, Resolved, nil
}

// Nickname joins first and last name and trims surrounding whitespace.
func Nickname(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
