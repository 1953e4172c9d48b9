// Package transport is the inbound BiDi WebSocket server: it accepts one
// connection per client, dials the configured CDP endpoint, and wires a
// mapper.Session between the two.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vibium/mapper/internal/cdp"
	"github.com/vibium/mapper/internal/log"
	"github.com/vibium/mapper/internal/mapper"
)

const (
	maxMessageSize    = 10 * 1024 * 1024
	clientReadDeadline = 300 * time.Second
)

// Server accepts inbound BiDi WebSocket connections and bridges each one to
// its own CDP client connection.
type Server struct {
	port       int
	cdpURL     string
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    sync.Map // map[uint64]*clientConn
	nextID     atomic.Uint64
	logger     *log.Logger
}

// NewServer builds a Server that listens on port and dials cdpURL once per
// inbound connection. cdpURL is dialed exactly as given; NewServer does not
// discover an endpoint when it is empty.
func NewServer(port int, cdpURL string, logger *log.Logger) *Server {
	return &Server{
		port:   port,
		cdpURL: cdpURL,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Port returns the port the server is bound to, resolving an OS-assigned
// port (0) only after Start has run.
func (s *Server) Port() int { return s.port }

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleWebSocket)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("transport: listen on port %d: %w", s.port, err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{Handler: mux}
	go s.httpServer.Serve(listener)
	return nil
}

// Stop closes every client connection and shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.clients.Range(func(_, v any) bool {
		v.(*clientConn).Close()
		return true
	})
	return s.httpServer.Shutdown(ctx)
}

type clientConn struct {
	id      uint64
	conn    *websocket.Conn
	mu      sync.Mutex
	closed  bool
	session *mapper.Session
}

func (c *clientConn) send(msg mapper.OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transport: upgrade error: %v\n", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &clientConn{id: s.nextID.Add(1), conn: conn}
	s.clients.Store(client.id, client)
	s.logger.Infof("client %d connected from %s", client.id, r.RemoteAddr)

	cdpClient, err := cdp.Dial(s.cdpURL)
	if err != nil {
		s.logger.Errorf("client %d: dial CDP %s: %v", client.id, s.cdpURL, err)
		client.Close()
		s.clients.Delete(client.id)
		return
	}

	client.session = mapper.NewSession(cdpClient, client.send)
	if err := client.session.Start(r.Context()); err != nil {
		s.logger.Errorf("client %d: session start: %v", client.id, err)
	}

	s.handleClient(client)
}

func (s *Server) handleClient(client *clientConn) {
	defer func() {
		s.clients.Delete(client.id)
		if client.session != nil {
			client.session.Close()
		}
		client.Close()
		s.logger.Infof("client %d disconnected", client.id)
	}()

	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(clientReadDeadline))
		return nil
	})

	for {
		client.conn.SetReadDeadline(time.Now().Add(clientReadDeadline))
		msgType, msg, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Errorf("client %d: read error: %v", client.id, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var cmd mapper.InboundCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			s.logger.Errorf("client %d: malformed command: %v", client.id, err)
			continue
		}
		go func() {
			resp := client.session.HandleCommand(context.Background(), cmd)
			client.send(resp)
		}()
	}
}
