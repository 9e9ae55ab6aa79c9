package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cdswerx/cdsync/internal/coord/access"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// sendTimeout bounds a single WebSocket write.
const sendTimeout = 5 * time.Second

// clientSet tracks connected WebSocket clients.
type clientSet struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

func newClientSet() *clientSet {
	return &clientSet{conns: make(map[*websocket.Conn]struct{})}
}

func (c *clientSet) add(conn *websocket.Conn) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = struct{}{}
	return len(c.conns)
}

// remove reports whether conn was present and the remaining count.
func (c *clientSet) remove(conn *websocket.Conn) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[conn]; !ok {
		return false, len(c.conns)
	}
	delete(c.conns, conn)
	return true, len(c.conns)
}

func (c *clientSet) list() []*websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(c.conns))
	for conn := range c.conns {
		out = append(out, conn)
	}
	return out
}

func (c *clientSet) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

func (c *clientSet) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn := range c.conns {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(c.conns, conn)
	}
}

// Broadcast queues msg for every client. It drops msg when the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("WARNING: broadcast channel full, dropping message")
	}
}

// BroadcastData marshals data and broadcasts it as a typ message.
func (s *Server) BroadcastData(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", typ, err)
		return
	}
	s.Broadcast(Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw})
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}
			for _, conn := range s.clients.list() {
				if err := s.send(conn, data); err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.dropClient(conn)
				}
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleWebSocket registers a client and sends it the current status.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if !s.policy.CanAccess(user, access.ResourceStatus) {
		writeError(w, http.StatusForbidden, schema.ErrAccessDenied)
		return
	}

	// The server's read and write timeouts are connection deadlines that
	// survive the hijack; a feed connection lives until the client leaves.
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Printf("WARNING: cannot clear read deadline: %v", err)
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Printf("WARNING: cannot clear write deadline: %v", err)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.logger.Printf("Client connected (total: %d)", s.clients.add(conn))

	report, err := s.actions.Status(r.Context(), user)
	if err != nil {
		s.logger.Printf("WARNING: no status for new client: %v", err)
	}
	welcome, _ := json.Marshal(Message{Type: MessageTypeStatus, Timestamp: time.Now().UTC(), Data: mustJSON(report)})
	_ = s.send(conn, welcome)

	go s.readLoop(conn)
}

// readLoop discards client frames until the client disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.dropClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) dropClient(conn *websocket.Conn) {
	removed, remaining := s.clients.remove(conn)
	if !removed {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", remaining)
}
