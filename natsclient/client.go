package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/metric"
	"github.com/c360/fr-service/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = stderrors.New("not connected to NATS")

// messageTimeout bounds the context handed to each subscription callback.
const messageTimeout = 30 * time.Second

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Messenger is the pub/sub surface components depend on.
type Messenger interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (Subscription, error)
	Publish(ctx context.Context, subject string, data []byte) error
}

var _ Messenger = (*Client)(nil)

// Status holds runtime status information for the client.
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	RTT             time.Duration
}

// Client manages one NATS connection with a circuit breaker.
type Client struct {
	url      string
	status   atomic.Value // ConnectionStatus
	failures atomic.Int32
	logger   *slog.Logger
	metrics  *metric.Metrics

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	username string
	password string
	token    string

	clientName string

	onHealthChange func(bool)

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for url. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	return c, nil
}

// URL returns the server URL.
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status.
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	if m.metrics != nil {
		m.metrics.RecordNATSStatus(status == StatusConnected)
		m.metrics.RecordCircuitBreakerState(status == StatusCircuitOpen)
	}
}

// IsHealthy reports whether the client is connected.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the failure count since the last success.
func (m *Client) Failures() int32 {
	return m.failures.Load()
}

// Backoff returns the current circuit breaker backoff.
func (m *Client) Backoff() time.Duration {
	return m.backoff.Load().(time.Duration)
}

// OnHealthChange registers a callback invoked when connectivity changes.
func (m *Client) OnHealthChange(fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHealthChange = fn
}

// recordFailure counts a failure and opens the circuit once the threshold is
// reached within one round.
func (m *Client) recordFailure() {
	total := m.failures.Add(1)
	m.lastFailure.Store(time.Now())
	round := m.circuitFailures.Add(1)

	m.logger.Debug("NATS failure recorded", "failures", total, "round", round)

	if round < m.circuitThreshold {
		return
	}

	current := m.Status()
	backoff := m.backoff.Load().(time.Duration)
	next := min(backoff*2, m.maxBackoff)

	if current == StatusCircuitOpen {
		m.backoff.Store(next)
		m.circuitFailures.Store(0)
		m.logger.Warn("NATS circuit breaker still open", "backoff", next)
		return
	}
	if !m.status.CompareAndSwap(current, StatusCircuitOpen) {
		return
	}
	m.setStatus(StatusCircuitOpen)
	m.backoff.Store(next)
	m.circuitFailures.Store(0)
	m.logger.Warn("NATS circuit breaker opened", "failures", round, "backoff", backoff)
	time.AfterFunc(backoff, m.halfOpen)
}

func (m *Client) resetCircuit() {
	m.failures.Store(0)
	m.circuitFailures.Store(0)
	m.backoff.Store(time.Second)
	m.lastFailure.Store(time.Time{})

	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// halfOpen lets the next call through after the backoff elapsed.
func (m *Client) halfOpen() {
	if m.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected) {
		m.setStatus(StatusDisconnected)
		m.logger.Debug("NATS circuit breaker half-open")
	}
}

// GetStatus returns a status snapshot.
func (m *Client) GetStatus() *Status {
	status := &Status{
		Status:          m.Status(),
		FailureCount:    m.failures.Load(),
		LastFailureTime: m.lastFailure.Load().(time.Time),
	}
	if rtt, err := m.RTT(); err == nil {
		status.RTT = rtt
	}
	return status
}

func (m *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}
	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	return opts
}

// Connect establishes the connection and the JetStream context.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Client", "Connect", "check client state")
	}
	if m.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrCircuitOpen, "Client", "Connect", "check circuit")
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	opts := m.connectionOptions()
	done := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			done <- err
			return
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			done <- err
			return
		}
		m.mu.Lock()
		m.conn = conn
		m.js = js
		m.mu.Unlock()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return m.connectFailed(err, "establish connection")
		}
	case <-ctx.Done():
		return m.connectFailed(ctx.Err(), "connection cancelled")
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS", "url", m.url)
	m.notifyHealth(true)
	return nil
}

func (m *Client) connectFailed(err error, action string) error {
	m.recordFailure()
	if m.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrCircuitOpen, "Client", "Connect", action)
	}
	m.setStatus(StatusDisconnected)
	return errors.WrapTransient(err, "Client", "Connect", action)
}

// ConnectWithRetry calls Connect until it succeeds, the retry budget is
// spent or ctx is done. Each attempt is bounded by the client timeout.
func (m *Client) ConnectWithRetry(ctx context.Context, cfg retry.Config) error {
	return retry.Do(ctx, cfg, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		err := m.Connect(attemptCtx)
		if err != nil && errors.IsInvalid(err) {
			return retry.NonRetryable(err)
		}
		if err != nil {
			m.logger.Warn("NATS connect attempt failed", "error", err)
		}
		return err
	})
}

// WaitForConnection blocks until the client is connected or ctx is done.
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, ctx.Err()),
				"Client", "WaitForConnection", "wait")
		case <-ticker.C:
		}
	}
}

// Close unsubscribes everything and drains the connection. It is safe to
// call more than once.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) &&
			!stderrors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+sub.Subject))
		}
	}
	m.subs = nil

	if m.conn != nil {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		conn := m.conn
		drained := make(chan error, 1)
		go func() {
			if err := conn.Drain(); err != nil {
				drained <- err
				return
			}
			for !conn.IsClosed() {
				time.Sleep(10 * time.Millisecond)
			}
			drained <- nil
		}()

		select {
		case err := <-drained:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout), "Client", "Close", "drain connection"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain connection"))
		}

		conn.Close()
		m.conn = nil
		m.js = nil
	}

	m.username = ""
	m.password = ""
	m.token = ""
	m.setStatus(StatusDisconnected)

	return stderrors.Join(errs...)
}

// RTT returns the round-trip time to the server.
func (m *Client) RTT() (time.Duration, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Subscribe delivers every message on subject to handler. Each call gets a
// context derived from ctx and bounded by a 30 second timeout.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "Subscribe", "subscribe "+subject)
	}

	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		msgCtx, cancel := context.WithTimeout(ctx, messageTimeout)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err),
			"Client", "Subscribe", "subscribe "+subject)
	}

	m.subs = append(m.subs, sub)
	m.logger.Debug("Subscribed", "subject", subject)
	return sub, nil
}

// Publish sends data on subject.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", "publish "+subject)
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

// JetStream returns the JetStream context of the current connection.
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return m.js, nil
}

// jetStreamReady checks the circuit and connection before a JetStream call.
func (m *Client) jetStreamReady(method string) (jetstream.JetStream, error) {
	switch m.Status() {
	case StatusCircuitOpen:
		return nil, errors.WrapTransient(errors.ErrCircuitOpen, "Client", method, "check circuit")
	case StatusConnected:
	default:
		return nil, errors.WrapTransient(ErrNotConnected, "Client", method, "check connection")
	}
	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}
	return js, nil
}

// CreateKeyValueBucket returns the bucket named in cfg, creating it when it
// does not exist yet.
func (m *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := m.jetStreamReady("CreateKeyValueBucket")
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		m.resetCircuit()
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if isAlreadyExistsError(err) {
			// Lost a creation race with another process.
			bucket, err = js.KeyValue(ctx, cfg.Bucket)
			if err == nil {
				m.resetCircuit()
				return bucket, nil
			}
		}
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "create bucket "+cfg.Bucket)
	}

	m.logger.Info("Created KV bucket", "bucket", cfg.Bucket)
	m.resetCircuit()
	return bucket, nil
}

// GetKeyValueBucket returns an existing bucket.
func (m *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := m.jetStreamReady("GetKeyValueBucket")
	if err != nil {
		return nil, err
	}
	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, errors.WrapInvalid(err, "Client", "GetKeyValueBucket", "get bucket "+name)
		}
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "GetKeyValueBucket", "get bucket "+name)
	}
	m.resetCircuit()
	return bucket, nil
}

// DeleteKeyValueBucket removes a bucket and its contents.
func (m *Client) DeleteKeyValueBucket(ctx context.Context, name string) error {
	js, err := m.jetStreamReady("DeleteKeyValueBucket")
	if err != nil {
		return err
	}
	if err := js.DeleteKeyValue(ctx, name); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "DeleteKeyValueBucket", "delete bucket "+name)
	}
	m.resetCircuit()
	return nil
}

func isAlreadyExistsError(err error) bool {
	if stderrors.Is(err, jetstream.ErrBucketExists) || stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	return strings.Contains(err.Error(), "already in use") || strings.Contains(err.Error(), "already exists")
}

func (m *Client) notifyHealth(healthy bool) {
	m.mu.RLock()
	fn := m.onHealthChange
	m.mu.RUnlock()
	if fn != nil {
		go fn(healthy)
	}
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("Disconnected from NATS", "error", err)
	m.notifyHealth(false)
}

func (m *Client) handleReconnect(conn *nats.Conn) {
	m.setStatus(StatusConnected)
	m.resetCircuit()
	if m.metrics != nil {
		m.metrics.RecordNATSReconnect()
	}
	m.logger.Info("Reconnected to NATS", "url", conn.ConnectedUrl())
	m.notifyHealth(true)
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
	m.notifyHealth(false)
}

func (m *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		m.logger.Error("NATS error", "subject", sub.Subject, "error", err)
		return
	}
	m.logger.Error("NATS error", "error", err)
}
