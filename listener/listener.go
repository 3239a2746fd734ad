package listener

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/netutil"
)

const maxAcceptDelay = time.Second

// ResilientListener wraps net.Listener so that recoverable accept errors are logged and
// skipped instead of stopping the HTTP server.
type ResilientListener struct {
	net.Listener
	Logger *slog.Logger
	sleep  func(time.Duration)
}

// New wraps listenerToWrap. When maxConns is positive, at most maxConns connections are
// served at once and further ones wait in the kernel backlog.
func New(listenerToWrap net.Listener, logger *slog.Logger, maxConns int) *ResilientListener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxConns > 0 {
		listenerToWrap = netutil.LimitListener(listenerToWrap, maxConns)
	}
	return &ResilientListener{Listener: listenerToWrap, Logger: logger, sleep: time.Sleep}
}

// Accept will gracefully handle recoverable errors and continue without crashing the server.
// Consecutive failures are spaced out, starting at 5ms and doubling up to one second.
func (l *ResilientListener) Accept() (net.Conn, error) {
	var delay time.Duration
	for {
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		// If the listener was closed, this is a fatal error. Propagate it.
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}

		if delay == 0 {
			delay = 5 * time.Millisecond
		} else {
			delay = min(delay*2, maxAcceptDelay)
		}
		l.Logger.Warn("recoverable listener error, connection rejected", "err", err, "retry_in", delay)
		l.sleep(delay)
	}
}
