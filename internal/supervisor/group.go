package supervisor

import (
	"context"
	"sync"
)

// Group runs a set of supervisors side by side. One account ending, for
// any reason, never stops the others.
type Group struct {
	members []*Supervisor
}

func NewGroup(members ...*Supervisor) *Group {
	return &Group{members: members}
}

// Run starts every supervisor and waits for all of them to end.
func (g *Group) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range g.members {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			_ = s.Run(ctx)
		}(s)
	}
	wg.Wait()
}

// Statuses lists supervisors in configuration order.
func (g *Group) Statuses() []Status {
	out := make([]Status, 0, len(g.members))
	for _, s := range g.members {
		out = append(out, s.Status())
	}
	return out
}
