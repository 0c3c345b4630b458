package relay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrServerClosed is returned by Accept after Close.
var ErrServerClosed = errors.New("relay: server closed")

// Options configures a Server.
type Options struct {
	// HandshakeTimeout bounds the server handshake with each client.
	HandshakeTimeout time.Duration

	// MaxResponders caps the number of responders per path. Values
	// outside 1..254 select 254.
	MaxResponders int
}

// NewOptions returns the default relay options.
func NewOptions() *Options {
	return &Options{
		HandshakeTimeout: 30 * time.Second,
		MaxResponders:    int(protocol.IDResponderMax-protocol.IDResponderMin) + 1,
	}
}

// Server is a SaltyRTC relay.
type Server struct {
	keys     *crypto.KeyStore
	options  *Options
	upgrader *transport.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	paths  map[string]*path
	closed bool
}

// NewServer creates a relay using keys as its permanent key pair.
func NewServer(keys *crypto.KeyStore, options *Options) *Server {
	if options == nil {
		options = NewOptions()
	}
	if options.MaxResponders < 1 || options.MaxResponders > 254 {
		options.MaxResponders = 254
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		keys:     keys,
		options:  options,
		upgrader: transport.NewUpgrader(),
		ctx:      ctx,
		cancel:   cancel,
		paths:    make(map[string]*path),
	}
}

// PublicKey returns the relay's permanent public key.
func (s *Server) PublicKey() []byte {
	return s.keys.PublicKey()
}

// Accept takes over conn, a client connected to pathHex, and serves it in
// a new goroutine. Invalid paths are rejected with CloseProtocolError.
func (s *Server) Accept(pathHex string, conn transport.Conn) error {
	key, err := parsePath(pathHex)
	if err != nil {
		conn.Close(protocol.CloseProtocolError)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(protocol.CloseGoingAway)
		return ErrServerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.serve(key, conn)
	}()
	return nil
}

// Dialer returns a transport.Dialer that connects to this relay over
// in-memory pipes.
func (s *Server) Dialer() transport.Dialer {
	return &transport.PipeDialer{Accept: s.Accept}
}

// ServeHTTP upgrades the request to a WebSocket and serves the client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, pathHex, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.ServeHTTP",
			"remote":   r.RemoteAddr,
			"error":    err.Error(),
		}).Debug("WebSocket upgrade failed")
		return
	}
	if err := s.Accept(pathHex, conn); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.ServeHTTP",
			"remote":   r.RemoteAddr,
			"error":    err.Error(),
		}).Debug("Rejected client")
	}
}

// ListenAndServe serves WebSocket clients on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"function": "Server.ListenAndServe",
			"addr":     addr,
		}).Info("Relay listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	})
	return g.Wait()
}

// Close disconnects every client and waits for their goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var clients []*client
	for _, p := range s.paths {
		clients = append(clients, p.clients()...)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(protocol.CloseGoingAway)
	}
	s.cancel()
	s.wg.Wait()
}

// Clients returns the number of authenticated clients on pathHex.
func (s *Server) Clients(pathHex string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[pathHex]
	if !ok {
		return 0
	}
	return len(p.clients())
}

func parsePath(pathHex string) ([]byte, error) {
	if len(pathHex) != 2*protocol.KeyBytes {
		return nil, fmt.Errorf("%w: path must be %d hex characters, got %d", protocol.ErrProtocol, 2*protocol.KeyBytes, len(pathHex))
	}
	key, err := hex.DecodeString(pathHex)
	if err != nil {
		return nil, fmt.Errorf("%w: path is not hex: %v", protocol.ErrProtocol, err)
	}
	return key, nil
}
