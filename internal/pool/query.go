package pool

import (
	"context"
	"strings"
	"time"

	"github.com/kevin07696/pgpool/pkg/resilience"
)

// Query acquires a connection, executes text with positional args, and
// releases it, transparently retrying the whole cycle on the two
// failover conditions spec §4.6 calls out: the connection landed on a
// read-only replica mid-failover, or the connection was silently
// severed. Each condition has its own time-limited retry budget,
// independent of the other and of the connect-level budgets in connect.go.
func (p *Pool) Query(ctx context.Context, text string, args []any) (*Result, error) {
	start := time.Now()

	for {
		pc, err := p.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		queryCtx := ctx
		var cancel context.CancelFunc
		if p.opts.QueryTimeout > 0 {
			queryCtx, cancel = context.WithTimeout(ctx, p.opts.QueryTimeout)
		}
		res, qerr := pc.Query(queryCtx, text, args)
		if cancel != nil {
			cancel()
		}
		if qerr == nil {
			if relErr := pc.Release(false); relErr != nil {
				return res, relErr
			}
			return res, nil
		}

		if p.opts.ReconnectOnReadOnlyTransactionError && isReadOnlyTransactionError(qerr) {
			pc.Release(true)
			// The failing connection alone isn't enough: every other idle
			// connection may still be pointed at the same now-read-only
			// primary, so force the next Acquire to dial fresh (spec §4.6
			// step 5).
			p.drainIdleConnections()
			if time.Since(start) > time.Duration(p.opts.ReadOnlyTransactionReconnectTimeoutMillis)*time.Millisecond {
				return nil, qerr
			}
			p.opts.Events.queryDeniedForReadOnlyTransaction()
			p.metrics.IncQueryRetry("read_only_transaction")
			backoff := &resilience.FixedBackoff{Delay: time.Duration(p.opts.WaitForReconnectReadOnlyTransactionMillis) * time.Millisecond}
			if !sleepOrDone(ctx, backoff.NextDelay(0)) {
				return nil, ctx.Err()
			}
			continue
		}

		if p.opts.ReconnectOnConnectionError && isConnectionError(qerr) {
			pc.Release(true)
			p.drainIdleConnections()
			if time.Since(start) > time.Duration(p.opts.ConnectionReconnectTimeoutMillis)*time.Millisecond {
				return nil, qerr
			}
			p.opts.Events.queryDeniedForConnectionError()
			p.metrics.IncQueryRetry("connection_error")
			backoff := &resilience.FixedBackoff{Delay: time.Duration(p.opts.WaitForReconnectConnectionMillis) * time.Millisecond}
			if !sleepOrDone(ctx, backoff.NextDelay(0)) {
				return nil, ctx.Err()
			}
			continue
		}

		pc.Release(false)
		return nil, qerr
	}
}

// QueryNamed rewrites @name parameters in text against params and runs
// the result through Query.
func (p *Pool) QueryNamed(ctx context.Context, text string, params map[string]any) (*Result, error) {
	rewritten, args, err := RewriteNamedParameters(p.opts, text, params)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, rewritten, args)
}

func isReadOnlyTransactionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "read-only transaction") || strings.Contains(msg, "read only transaction")
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"connection reset", "broken pipe", "connection refused", "use of closed network connection", "eof", "terminating connection"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
