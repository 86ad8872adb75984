package host

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"perpkernel/engine"
)

// CrankScheduler runs KeeperCrank on a fixed cadence. The crank is
// permissionless by design (§4.7); rate-limiting it here only protects the
// session's lock from being starved by an overly tight cadence, not from
// any untrusted caller since there is none in-process.
type CrankScheduler struct {
	session *Session
	prices  engine.OraclePriceLookup
	budget  uint16
	limiter *rate.Limiter
	obs     engine.CrankObserver
}

func NewCrankScheduler(session *Session, prices engine.OraclePriceLookup, budget uint16, every time.Duration, obs engine.CrankObserver) *CrankScheduler {
	return &CrankScheduler{
		session: session,
		prices:  prices,
		budget:  budget,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		obs:     obs,
	}
}

// Run blocks, invoking KeeperCrank on cadence until ctx is canceled.
func (c *CrankScheduler) Run(ctx context.Context, nowSlot func() uint64) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait also fails early when the next tick lies past ctx's
			// deadline; keep blocking until ctx itself is done.
			<-ctx.Done()
			return ctx.Err()
		}
		if err := c.session.Do(func(e *engine.Engine) error {
			return e.KeeperCrank(nowSlot(), c.prices, c.budget, c.obs)
		}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
