package compute

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs tasks with at most limit in flight. The context passed to
// tasks is cancelled as soon as one of them fails.
type Group struct {
	g   *errgroup.Group
	ctx context.Context
}

func NewGroup(ctx context.Context, limit int) *Group {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Group{g: g, ctx: gctx}
}

func (g *Group) Go(fn func(ctx context.Context) error) {
	g.g.Go(func() error {
		return fn(g.ctx)
	})
}

// Wait blocks until every task returns and reports the first error.
func (g *Group) Wait() error {
	return g.g.Wait()
}
