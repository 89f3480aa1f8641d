package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tolelom/tolbattle/events"
)

// eventBuffer is how many events a slow websocket client may lag behind
// before further events are dropped for it.
const eventBuffer = 64

// Server is a JSON-RPC 2.0 HTTP server with a websocket event stream at /ws.
type Server struct {
	handler   *Handler
	emitter   *events.Emitter
	addr      string
	authToken string // empty → no auth required
	srv       *http.Server
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	ln    net.Listener
	conns map[*websocket.Conn]struct{}
}

// NewServer creates a Server on addr. If authToken is non-empty, every
// request must carry a matching "Authorization: Bearer <token>" header
// (websocket clients may pass ?token= instead). emitter may be nil, in which
// case /ws is not served.
func NewServer(addr string, handler *Handler, emitter *events.Emitter, authToken string) *Server {
	s := &Server{
		handler:   handler,
		emitter:   emitter,
		addr:      addr,
		authToken: authToken,
		conns:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	if emitter != nil {
		mux.HandleFunc("/ws", s.serveWS)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving both endpoints.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[rpc] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests to complete. Websocket streams are closed first since
// Shutdown does not track hijacked connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	for c := range s.conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		_ = c.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request, allowQuery bool) bool {
	if s.authToken == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" && allowQuery {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.authToken)) == 1
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.authorized(r, false) {
		writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}

	// Limit request body to 1 MB to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	resp := s.handler.Dispatch(req)
	writeJSON(w, resp)
}

// serveWS streams every emitted event to the client as one JSON text message.
// Client messages are read only to notice disconnects.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r, true) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	// subscribe before the handshake completes so the client sees every
	// event emitted after its dial returns
	out := make(chan []byte, eventBuffer)
	cancelSub := s.emitter.SubscribeAll(func(ev events.Event) {
		b, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[rpc] marshal event %s: %v", ev.Type, err)
			return
		}
		select {
		case out <- b:
		default:
			log.Printf("[rpc] ws client %s lagging, dropped %s event", r.RemoteAddr, ev.Type)
		}
	})
	defer cancelSub()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.track(conn, true)
	defer func() {
		s.track(conn, false)
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(c *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
