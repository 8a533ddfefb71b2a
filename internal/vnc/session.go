package vnc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"heatvision-agent/internal/backoff"
	"heatvision-agent/internal/model"
)

// SessionManager owns the single console session and its reconnect flow.
// Exactly one connection is live at a time; any I/O failure invalidates it.
type SessionManager struct {
	mu             sync.Mutex
	transport      Transport
	addr           string
	password       string
	connectTimeout time.Duration
	policy         backoff.Policy
	logger         *slog.Logger
	conn           Conn
	sessionID      string
}

func NewSessionManager(t Transport, addr, password string, connectTimeout time.Duration, policy backoff.Policy, logger *slog.Logger) *SessionManager {
	if connectTimeout <= 0 {
		connectTimeout = 8 * time.Second
	}
	return &SessionManager{
		transport:      t,
		addr:           addr,
		password:       password,
		connectTimeout: connectTimeout,
		policy:         policy,
		logger:         logger,
	}
}

// Connect establishes a session, retrying with the backoff policy. It
// returns the last connect error once the attempt budget is exhausted.
// The connect attempt is the only operation with an explicit timeout.
func (m *SessionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return nil
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		conn, err := m.transport.Dial(dialCtx, m.addr, m.password)
		cancel()
		if err == nil {
			m.conn = conn
			m.sessionID = uuid.NewString()
			m.logger.Info("console session established", "addr", m.addr, "session_id", m.sessionID)
			return nil
		}

		lastErr = err
		if m.policy.Exhausted(attempt + 1) {
			return fmt.Errorf("connect attempts exhausted after %d tries: %w", attempt+1, lastErr)
		}
		wait := m.policy.Delay(attempt)
		m.logger.Error("console connect failed", "addr", m.addr, "error", err, "retry_in", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Valid reports whether a session is currently live.
func (m *SessionManager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Invalidate drops the current session so the next cycle reconnects.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

func (m *SessionManager) invalidateLocked() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.logger.Warn("session close failed", "error", err)
	}
	m.conn = nil
	m.logger.Info("console session invalidated", "session_id", m.sessionID)
}

// SessionID identifies the current connection for log correlation.
func (m *SessionManager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Capture takes a full screenshot. Any transport error invalidates the
// session.
func (m *SessionManager) Capture(ctx context.Context) (model.RawCapture, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return model.RawCapture{}, fmt.Errorf("no live session")
	}

	img, err := conn.Capture(ctx)
	if err != nil {
		m.Invalidate()
		return model.RawCapture{}, fmt.Errorf("capture: %w", err)
	}
	return model.RawCapture{Image: img, At: time.Now().UTC()}, nil
}

// SendKey forwards a key press without waiting for any UI reaction.
func (m *SessionManager) SendKey(code uint32) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no live session")
	}
	if err := conn.SendKey(code); err != nil {
		m.Invalidate()
		return err
	}
	return nil
}

// SendPointer forwards a pointer move+click without waiting for any UI
// reaction.
func (m *SessionManager) SendPointer(x, y int, button uint8) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no live session")
	}
	if err := conn.SendPointer(x, y, button); err != nil {
		m.Invalidate()
		return err
	}
	return nil
}

func (m *SessionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
	return nil
}
