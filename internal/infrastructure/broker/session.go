package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// Logger is the logging interface used by the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Exchange describes a declared exchange.
type Exchange struct {
	Name    string
	Kind    ExchangeKind
	Durable bool
}

// Binding attaches a queue to an exchange under a routing key pattern.
type Binding struct {
	Queue    string
	Exchange string
	Pattern  string
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the paho dialer, typically with MemoryBroker.Dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session owns one logical broker connection.
//
// It keeps the declared exchanges and bindings so a replacement
// connection can be brought back to the same shape. Declarations are keyed
// by name, so replaying them never creates duplicates.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent Reconnect calls share a single reconnect.
type Session struct {
	dial   Dialer
	logger Logger

	// life is cancelled by Close so a running reconnect stops promptly.
	life       context.Context
	cancelLife context.CancelFunc

	// opMu serialises connect, reconnect, reconfigure and close.
	opMu sync.Mutex

	// stateMu guards the fields below it.
	stateMu  sync.Mutex
	cfg      config.BrokerConfig
	conn     Conn
	lost     chan struct{}
	gen      uint64
	closed   bool
	failed   error
	done     chan struct{}
	doneOnce sync.Once

	declMu    sync.RWMutex
	exchanges map[string]Exchange
	bindings  map[Binding]struct{}
	filters   map[string][]string // transport filter -> queues, in bind order
	sinks     map[string]Sink
}

// Connect opens a session, trying up to cfg.Retry.MaxAttempts times with
// cfg.Retry.Delay between attempts. When the attempts are exhausted the
// error wraps ErrConnection.
func Connect(ctx context.Context, cfg config.BrokerConfig, opts ...Option) (*Session, error) {
	s := &Session{
		dial:      PahoDialer,
		logger:    noopLogger{},
		cfg:       cfg,
		done:      make(chan struct{}),
		exchanges: make(map[string]Exchange),
		bindings:  make(map[Binding]struct{}),
		filters:   make(map[string][]string),
		sinks:     make(map[string]Sink),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.life, s.cancelLife = context.WithCancel(context.Background())

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.open(ctx, connectPolicy(cfg)); err != nil {
		s.cancelLife()
		return nil, err
	}
	return s, nil
}

// open dials under policy and restores every binding on the new
// connection. The caller must hold opMu.
func (s *Session) open(ctx context.Context, policy RetryPolicy) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	s.stateMu.Lock()
	cfg := s.cfg
	s.gen++
	gen := s.gen
	s.lost = make(chan struct{})
	s.stateMu.Unlock()

	var conn Conn
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c, err := s.dial(ctx, cfg, s.lostHandler(gen))
		if err != nil {
			s.logger.Warn("broker dial failed",
				"host", cfg.Host,
				"port", cfg.Port,
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"error", err,
			)
			return err
		}
		if err := s.restore(ctx, c); err != nil {
			c.Close()
			s.logger.Warn("restoring bindings failed", "attempt", attempt, "error", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && s.life.Err() == nil {
			return err
		}
		if s.life.Err() != nil {
			return ErrClosed
		}
		return fmt.Errorf("%w: %s:%d after %d attempts: %w", ErrConnection, cfg.Host, cfg.Port, attempts, err)
	}

	s.stateMu.Lock()
	s.conn = conn
	s.stateMu.Unlock()

	s.logger.Info("broker connected", "host", cfg.Host, "port", cfg.Port, "attempts", attempts)
	return nil
}

// restore replays every bound filter onto conn.
func (s *Session) restore(ctx context.Context, conn Conn) error {
	s.declMu.RLock()
	filters := make([]string, 0, len(s.filters))
	for f := range s.filters {
		filters = append(filters, f)
	}
	s.declMu.RUnlock()

	qos := s.qos()
	for _, f := range filters {
		if err := conn.Subscribe(ctx, f, qos, s.route(f)); err != nil {
			return err
		}
	}
	return nil
}

// lostHandler returns the callback handed to the dialer for generation gen.
func (s *Session) lostHandler(gen uint64) func(error) {
	return func(err error) {
		s.stateMu.Lock()
		if gen != s.gen || s.closed || s.lost == nil {
			s.stateMu.Unlock()
			return
		}
		select {
		case <-s.lost:
			s.stateMu.Unlock()
			return
		default:
			close(s.lost)
		}
		auto := s.cfg.Recovery.Auto
		s.stateMu.Unlock()

		s.logger.Warn("broker connection lost", "error", err, "auto_reconnect", auto)
		if auto {
			go func() {
				if rerr := s.Reconnect(s.life); rerr != nil && !errors.Is(rerr, ErrClosed) {
					s.logger.Error("broker reconnect failed", "error", rerr)
				}
			}()
		}
	}
}

// Reconnect replaces a lost connection, using the reconnect policy.
//
// It is a no-op when the current connection is healthy, so every caller
// that observed ErrStreamLost can call it. When the policy is exhausted the
// session is marked failed: this and every later call return the same
// error wrapping ErrConnection and Done is closed.
func (s *Session) Reconnect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stateMu.Lock()
	switch {
	case s.closed:
		s.stateMu.Unlock()
		return ErrClosed
	case s.failed != nil:
		err := s.failed
		s.stateMu.Unlock()
		return err
	case s.healthyLocked():
		s.stateMu.Unlock()
		return nil
	}
	old := s.conn
	s.conn = nil
	cfg := s.cfg
	s.stateMu.Unlock()

	if old != nil {
		old.Close()
	}

	s.logger.Info("reconnecting to broker", "host", cfg.Host, "port", cfg.Port)
	err := s.open(ctx, recoveryPolicy(cfg))
	if err != nil && errors.Is(err, ErrConnection) {
		s.fail(err)
	}
	return err
}

// Reconfigure applies new connection parameters by closing the current
// connection and opening a fresh one. Bindings carry over.
func (s *Session) Reconfigure(ctx context.Context, cfg config.BrokerConfig) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return ErrClosed
	}
	if s.failed != nil {
		err := s.failed
		s.stateMu.Unlock()
		return err
	}
	old := s.conn
	s.conn = nil
	s.cfg = cfg
	s.stateMu.Unlock()

	if old != nil {
		old.Close()
	}

	s.logger.Info("broker parameters changed, reopening", "host", cfg.Host, "port", cfg.Port)
	err := s.open(ctx, connectPolicy(cfg))
	if err != nil && errors.Is(err, ErrConnection) {
		s.fail(err)
	}
	return err
}

// Close releases the connection. It is idempotent.
func (s *Session) Close() error {
	s.cancelLife()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.stateMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// Done is closed when the session is closed or has failed for good.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why Done was closed, or nil while the session is usable.
func (s *Session) Err() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.failed != nil {
		return s.failed
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

// IsConnected reports whether the current connection is healthy.
func (s *Session) IsConnected() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return !s.closed && s.failed == nil && s.healthyLocked()
}

// HealthCheck reports the session state as an error.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("broker health check: %w", ctx.Err())
	default:
	}
	if err := s.Err(); err != nil {
		return err
	}
	if !s.IsConnected() {
		return ErrStreamLost
	}
	return nil
}

// Config returns the parameters of the current connection.
func (s *Session) Config() config.BrokerConfig {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.cfg
}

func (s *Session) fail(err error) {
	s.stateMu.Lock()
	s.failed = err
	s.stateMu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	s.logger.Error("broker session failed", "error", err)
}

// healthyLocked requires stateMu.
func (s *Session) healthyLocked() bool {
	if s.conn == nil || s.lost == nil {
		return false
	}
	select {
	case <-s.lost:
		return false
	default:
	}
	return s.conn.IsConnected()
}

// current returns the live connection or the reason there is none.
func (s *Session) current() (Conn, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.failed != nil:
		return nil, s.failed
	case !s.healthyLocked():
		return nil, ErrStreamLost
	}
	return s.conn, nil
}

func (s *Session) qos() byte {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.cfg.QoS < 0 || s.cfg.QoS > 2 {
		return 1
	}
	return byte(s.cfg.QoS)
}
