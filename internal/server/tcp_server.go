// Package server accepts terminal connections and runs one session loop per
// connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"avl-gateway/internal/auth"
	"avl-gateway/internal/codec"
	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/observability"
)

// Handoff receives what sessions release. *dispatcher.Dispatcher implements it.
type Handoff interface {
	Enqueue(ctx context.Context, b dispatcher.Batch) error
	Announce(ctx context.Context, info dispatcher.DeviceInfo) error
}

type Options struct {
	Limits codec.Limits
	// SessionTimeout is both the read deadline and the pending-entry timeout.
	SessionTimeout time.Duration
	BatchSize      int
	BatchBudget    time.Duration
}

type TcpServer struct {
	opts    Options
	policy  auth.Policy
	handoff Handoff
	logger  *slog.Logger

	mu                sync.Mutex
	activeConnections map[string]net.Conn
	wg                sync.WaitGroup
}

func New(opts Options, policy auth.Policy, handoff Handoff, lg *slog.Logger) *TcpServer {
	return &TcpServer{
		opts:              opts,
		policy:            policy,
		handoff:           handoff,
		logger:            lg.With("component", "tcp"),
		activeConnections: make(map[string]net.Conn),
	}
}

func (s *TcpServer) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("error starting TCP server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts until ctx is done, then waits for every session to finish
// its teardown.
func (s *TcpServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("TCP server listening", "addr", ln.Addr().String())
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("accept error", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		observability.TCPConnections.Inc()
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.HandleConnection(ctx, c)
		}(conn)
	}
}

// HandleConnection runs the session loop for conn and returns after teardown.
func (s *TcpServer) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	observability.ActiveSessions.Inc()
	defer observability.ActiveSessions.Dec()

	newDeviceSession(s, conn).run(ctx)
}

// register tracks conn under imei and closes any older connection that
// claimed the same imei.
func (s *TcpServer) register(imei string, conn net.Conn) {
	s.mu.Lock()
	prev := s.activeConnections[imei]
	s.activeConnections[imei] = conn
	s.mu.Unlock()
	if prev != nil && prev != conn {
		s.logger.Warn("duplicate session, closing previous connection", "imei", imei, "previous", prev.RemoteAddr().String())
		_ = prev.Close()
	}
}

func (s *TcpServer) unregister(imei string, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeConnections[imei] == conn {
		delete(s.activeConnections, imei)
	}
}

// ActiveIMEIs counts registered sessions.
func (s *TcpServer) ActiveIMEIs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConnections)
}
