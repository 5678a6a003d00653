package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/pgpool/internal/fakeconn"
)

func TestConnectWithRetrySucceedsAfterRetryableErrors(t *testing.T) {
	factory := fakeconn.NewFactory(func(attempt int) fakeconn.Script {
		if attempt <= 2 {
			return fakeconn.Script{ConnectErr: errors.New("ENOTFOUND: could not resolve host")}
		}
		return fakeconn.Script{}
	})

	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(1),
		WithRetryConnection(5, 1, []string{"ENOTFOUND"}),
		WithConnectionTimeoutMillis(1000),
	))

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pc)
	assert.Equal(t, 3, factory.DialCount())
}

func TestConnectWithRetryExhaustsRetryBudget(t *testing.T) {
	var dialed int64
	factory := fakeconn.NewFactory(func(attempt int) fakeconn.Script {
		atomic.AddInt64(&dialed, 1)
		return fakeconn.Script{ConnectErr: errors.New("ENOTFOUND: could not resolve host")}
	})

	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(1),
		WithRetryConnection(2, 1, []string{"ENOTFOUND"}),
		WithConnectionTimeoutMillis(1000),
	))

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeConnectTimeout, code)
	// Initial attempt plus 2 retries = 3 dials.
	assert.Equal(t, int64(3), atomic.LoadInt64(&dialed))
}

func TestConnectWithRetryDoesNotRetryUnlistedErrors(t *testing.T) {
	factory := fakeconn.NewFactory(func(int) fakeconn.Script {
		return fakeconn.Script{ConnectErr: errors.New("permission denied for database")}
	})

	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(1),
		WithRetryConnection(5, 1, []string{"ENOTFOUND"}),
		WithConnectionTimeoutMillis(1000),
	))

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, factory.DialCount())
}

// TestConnectCodeRetryTakesPrecedenceOverStartupRetry proves spec §4.4
// step 3's ordering: an error that could match both retry policies is
// treated as a code-retry first. DatabaseStartupTimeoutMillis is set so
// low that misrouting this error into the startup branch would exhaust it
// on the very first attempt.
func TestConnectCodeRetryTakesPrecedenceOverStartupRetry(t *testing.T) {
	factory := fakeconn.NewFactory(func(attempt int) fakeconn.Script {
		if attempt == 1 {
			return fakeconn.Script{ConnectErr: errors.New("ENOTFOUND: database system is starting up")}
		}
		return fakeconn.Script{}
	})

	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(1),
		WithRetryConnection(1, 1, []string{"ENOTFOUND"}),
		WithDatabaseStartupRetry(true, 1, 0),
		WithConnectionTimeoutMillis(1000),
	))

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pc)
	assert.Equal(t, 2, factory.DialCount())
}

// TestConnectCodeRetryBudgetResetsAcrossStartupRetry proves spec §4.4 step
// 3's reset rule: falling into the startup-retry branch resets the
// code-retry counter, so an earlier code-retry doesn't permanently shrink
// the budget for a later, unrelated code-retry.
func TestConnectCodeRetryBudgetResetsAcrossStartupRetry(t *testing.T) {
	factory := fakeconn.NewFactory(func(attempt int) fakeconn.Script {
		switch attempt {
		case 1:
			return fakeconn.Script{ConnectErr: errors.New("ENOTFOUND: could not resolve host")}
		case 2:
			return fakeconn.Script{ConnectErr: errors.New("FATAL: the database system is starting up")}
		case 3:
			return fakeconn.Script{ConnectErr: errors.New("ENOTFOUND: could not resolve host")}
		default:
			return fakeconn.Script{}
		}
	})

	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(1),
		WithRetryConnection(1, 1, []string{"ENOTFOUND"}),
		WithDatabaseStartupRetry(true, 1, 5000),
		WithConnectionTimeoutMillis(1000),
	))

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pc)
	assert.Equal(t, 4, factory.DialCount())
}

func TestConnectRetriesThroughDatabaseStartup(t *testing.T) {
	factory := fakeconn.NewFactory(func(attempt int) fakeconn.Script {
		if attempt == 1 {
			return fakeconn.Script{ConnectErr: errors.New("FATAL: the database system is starting up")}
		}
		return fakeconn.Script{}
	})

	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(1),
		WithDatabaseStartupRetry(true, 1, 5000),
		WithConnectionTimeoutMillis(1000),
	))

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pc)
	assert.Equal(t, 2, factory.DialCount())
}
