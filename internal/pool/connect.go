package pool

import (
	"context"
	"strings"
	"time"

	"github.com/kevin07696/pgpool/pkg/resilience"
)

// connectWithRetry dials a fresh physical connection under two independent
// retry budgets (spec §4.4): a count-limited budget for transient
// connect-level errors named in RetryConnectionErrorCodes, and a
// time-limited budget for "the database is still starting up" that keeps
// retrying until DatabaseStartupTimeoutMillis elapses regardless of
// attempt count.
func (p *Pool) connectWithRetry(ctx context.Context, id string) (*PooledConnection, error) {
	start := time.Now()
	var startupDeadline time.Time
	errorRetries := 0

	for {
		conn := p.opts.Dial()

		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.opts.ConnectionTimeoutMillis > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(p.opts.ConnectionTimeoutMillis)*time.Millisecond)
		}
		err := conn.Connect(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			pc := &PooledConnection{id: id, pool: p, conn: conn, state: stateConnecting}
			conn.SetErrorListener(pc.errorHook)
			p.opts.Events.connectionAddedToPool(id, errorRetries, start)
			return pc, nil
		}

		// Destroy the half-open socket before the next attempt or giving
		// up (spec §5): a failed Connect can leave a transport FD open
		// that Close alone does not guarantee is torn down.
		if raw, ok := conn.RawConn(); ok && raw != nil {
			raw.Close()
		}
		_ = conn.Close(context.Background())

		// Code-retry is attempted before the database-starting-up retry
		// (spec §4.4 step 3): a transient connect error during startup
		// should still consume the code-retry budget first.
		if isRetryableConnectError(err, p.opts.RetryConnectionErrorCodes) && errorRetries < p.opts.RetryConnectionMaxRetries {
			errorRetries++
			p.opts.Events.retryConnectionOnError(err)
			p.metrics.IncConnectRetry()
			connectBackoff := &resilience.FixedBackoff{Delay: time.Duration(p.opts.RetryConnectionWaitMillis) * time.Millisecond}
			if !sleepOrDone(ctx, connectBackoff.NextDelay(errorRetries)) {
				return nil, wrapError(ErrCodeConnectTimeout, "context canceled while retrying connect", ctx.Err())
			}
			continue
		}

		if p.opts.ReconnectOnDatabaseIsStartingError && isDatabaseStartingUp(err) {
			if startupDeadline.IsZero() {
				startupDeadline = start.Add(time.Duration(p.opts.DatabaseStartupTimeoutMillis) * time.Millisecond)
			}
			if time.Now().After(startupDeadline) {
				return nil, wrapError(ErrCodeConnectTimeout, "database did not finish starting up in time", err)
			}
			p.opts.Events.waitingForDatabaseToStart()
			p.metrics.IncStartupWait()
			startupBackoff := &resilience.FixedBackoff{Delay: time.Duration(p.opts.WaitForDatabaseStartupMillis) * time.Millisecond}
			if !sleepOrDone(ctx, startupBackoff.NextDelay(0)) {
				return nil, wrapError(ErrCodeConnectTimeout, "context canceled while waiting for database startup", ctx.Err())
			}
			// The code-retry counter resets on a startup path: time spent
			// waiting for the database doesn't count against it.
			errorRetries = 0
			continue
		}

		return nil, wrapError(ErrCodeConnectTimeout, "failed to establish connection", err)
	}
}

func isDatabaseStartingUp(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database system is starting up")
}

func isRetryableConnectError(err error, codes []string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range codes {
		if code != "" && strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// sleepOrDone waits for d, returning false early if ctx is canceled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
