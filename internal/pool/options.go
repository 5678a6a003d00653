package pool

import (
	"regexp"
	"time"

	"go.uber.org/zap"
)

// defaultNamedParameterFindRegExp matches an @name token in query text.
// Compiled once at package init; FindAllString is stateless
// per call so sharing one compiled regexp across goroutines is safe —
// §9 only warns against *global-mode iterator state*, which Go's regexp
// package never carries between calls.
var defaultNamedParameterFindRegExp = regexp.MustCompile(`@(\w)+\b`)

// Options holds the pool's effective configuration. Field names map 1:1
// onto the recognized option table in spec §4.1. Build one with NewOptions,
// which starts from the documented defaults and applies each Option in
// order — this is the idiomatic functional-options shape, chosen over a
// zero-value-means-default struct because several of these fields
// default to true and a struct literal cannot distinguish "caller left
// this false on purpose" from "caller didn't set it".
type Options struct {
	PoolSize int

	IdleTimeoutMillis int

	WaitForAvailableConnectionTimeoutMillis int

	ConnectionTimeoutMillis int

	RetryConnectionMaxRetries int
	RetryConnectionWaitMillis int
	RetryConnectionErrorCodes []string

	ReconnectOnDatabaseIsStartingError bool
	WaitForDatabaseStartupMillis        int
	DatabaseStartupTimeoutMillis        int

	ReconnectOnReadOnlyTransactionError       bool
	WaitForReconnectReadOnlyTransactionMillis int
	ReadOnlyTransactionReconnectTimeoutMillis int

	ReconnectOnConnectionError       bool
	WaitForReconnectConnectionMillis int
	ConnectionReconnectTimeoutMillis int

	NamedParameterFindRegExp       *regexp.Regexp
	GetNamedParameterReplaceRegExp func(token string) *regexp.Regexp
	GetNamedParameterName          func(token string) string

	QueryTimeout     time.Duration
	StatementTimeout time.Duration

	Dial   Factory
	Events EventHandlers
	Logger *zap.Logger
}

// Option mutates an in-construction Options. See the With* functions.
type Option func(*Options)

// NewOptions builds an Options from the documented defaults plus the given
// overrides, in order. It does not check the resulting values: a zero or
// negative PoolSize or timeout is stored as given.
func NewOptions(dial Factory, opts ...Option) *Options {
	o := defaults()
	o.Dial = dial
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}

func defaults() Options {
	return Options{
		PoolSize:                                  10,
		IdleTimeoutMillis:                          10_000,
		WaitForAvailableConnectionTimeoutMillis:    90_000,
		ConnectionTimeoutMillis:                    5_000,
		RetryConnectionMaxRetries:                  5,
		RetryConnectionWaitMillis:                  100,
		RetryConnectionErrorCodes:                  []string{"ENOTFOUND", "EAI_AGAIN", "ERR_PG_CONNECT_TIMEOUT", "timeout expired"},
		ReconnectOnDatabaseIsStartingError:         true,
		WaitForDatabaseStartupMillis:               0,
		DatabaseStartupTimeoutMillis:               90_000,
		ReconnectOnReadOnlyTransactionError:        true,
		WaitForReconnectReadOnlyTransactionMillis:  0,
		ReadOnlyTransactionReconnectTimeoutMillis:  90_000,
		ReconnectOnConnectionError:                 true,
		WaitForReconnectConnectionMillis:           0,
		ConnectionReconnectTimeoutMillis:           90_000,
		NamedParameterFindRegExp:                   defaultNamedParameterFindRegExp,
		GetNamedParameterReplaceRegExp:              defaultNamedParameterReplaceRegExp,
		GetNamedParameterName:                       defaultNamedParameterName,
		Logger:                                      zap.NewNop(),
	}
}

func defaultNamedParameterReplaceRegExp(token string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(token) + `\b`)
}

func defaultNamedParameterName(token string) string {
	if len(token) > 0 && token[0] == '@' {
		return token[1:]
	}
	return token
}

func WithPoolSize(n int) Option { return func(o *Options) { o.PoolSize = n } }

func WithIdleTimeoutMillis(ms int) Option {
	return func(o *Options) { o.IdleTimeoutMillis = ms }
}

func WithWaitForAvailableConnectionTimeoutMillis(ms int) Option {
	return func(o *Options) { o.WaitForAvailableConnectionTimeoutMillis = ms }
}

func WithConnectionTimeoutMillis(ms int) Option {
	return func(o *Options) { o.ConnectionTimeoutMillis = ms }
}

func WithRetryConnection(maxRetries, waitMillis int, errorCodes []string) Option {
	return func(o *Options) {
		o.RetryConnectionMaxRetries = maxRetries
		o.RetryConnectionWaitMillis = waitMillis
		if errorCodes != nil {
			o.RetryConnectionErrorCodes = errorCodes
		}
	}
}

func WithDatabaseStartupRetry(enabled bool, waitMillis, timeoutMillis int) Option {
	return func(o *Options) {
		o.ReconnectOnDatabaseIsStartingError = enabled
		o.WaitForDatabaseStartupMillis = waitMillis
		o.DatabaseStartupTimeoutMillis = timeoutMillis
	}
}

func WithReadOnlyTransactionRetry(enabled bool, waitMillis, timeoutMillis int) Option {
	return func(o *Options) {
		o.ReconnectOnReadOnlyTransactionError = enabled
		o.WaitForReconnectReadOnlyTransactionMillis = waitMillis
		o.ReadOnlyTransactionReconnectTimeoutMillis = timeoutMillis
	}
}

func WithConnectionErrorRetry(enabled bool, waitMillis, timeoutMillis int) Option {
	return func(o *Options) {
		o.ReconnectOnConnectionError = enabled
		o.WaitForReconnectConnectionMillis = waitMillis
		o.ConnectionReconnectTimeoutMillis = timeoutMillis
	}
}

func WithQueryTimeout(d time.Duration) Option { return func(o *Options) { o.QueryTimeout = d } }

func WithStatementTimeout(d time.Duration) Option {
	return func(o *Options) { o.StatementTimeout = d }
}

func WithNamedParameterRules(find *regexp.Regexp, replace func(string) *regexp.Regexp, name func(string) string) Option {
	return func(o *Options) {
		if find != nil {
			o.NamedParameterFindRegExp = find
		}
		if replace != nil {
			o.GetNamedParameterReplaceRegExp = replace
		}
		if name != nil {
			o.GetNamedParameterName = name
		}
	}
}

func WithEvents(h EventHandlers) Option { return func(o *Options) { o.Events = h } }

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
