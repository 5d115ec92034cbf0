package hotreload

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/template"
)

// maxPatchSize caps request bodies on the publish endpoints.
const maxPatchSize = 1 << 20

// Server broadcasts template updates to connected clients. It keeps the
// latest definition of every published template and replays them to each
// client as it connects.
type Server struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex

	templates *template.Cache
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCheckOrigin sets the websocket origin check. The default accepts any
// origin.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// NewServer creates a reload server.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		templates: template.NewCache(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "reload-server")
	return s
}

// Routes returns the server's HTTP routes:
//
//	GET  /ws                      websocket for clients
//	PUT  /templates               publish a full template definition
//	POST /templates/{id}/patch    publish an RFC 6902 patch
//	POST /reload                  ask clients for a full reload
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", s.HandleWebSocket)
	r.Put("/templates", s.handlePutTemplate)
	r.Post("/templates/{id}/patch", s.handlePatch)
	r.Post("/reload", func(w http.ResponseWriter, _ *http.Request) {
		s.NotifyReload()
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// HandleWebSocket upgrades the connection, replays the known templates and
// keeps the client registered until it disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	wmu := &sync.Mutex{}

	s.mu.Lock()
	s.clients[conn] = wmu
	s.mu.Unlock()

	for _, id := range s.templates.IDs() {
		t, err := s.templates.Get(id)
		if err != nil {
			continue
		}
		if data, err := encode(protocol.ReloadTemplateUpdate, t); err == nil {
			s.write(conn, wmu, data)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.drop(conn)
}

// PublishTemplate stores t and sends it to every client.
func (s *Server) PublishTemplate(t *template.Template) error {
	if _, err := s.templates.Put(t); err != nil {
		return err
	}
	return s.publish(protocol.ReloadTemplateUpdate, t)
}

// PublishPatch applies patch to the stored template id and sends the patch
// to every client.
func (s *Server) PublishPatch(id string, patch json.RawMessage) error {
	if _, err := s.templates.Patch(id, patch); err != nil {
		return err
	}
	return s.publish(protocol.ReloadTemplatePatch, protocol.TemplatePatch{ID: id, Patch: patch})
}

// NotifyReload sends a full reload message to every client.
func (s *Server) NotifyReload() {
	_ = s.publish(protocol.ReloadFull, nil)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func encode(kind string, payload any) ([]byte, error) {
	msg := protocol.ReloadMessage{Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

func (s *Server) publish(kind string, payload any) error {
	data, err := encode(kind, payload)
	if err != nil {
		return err
	}

	s.mu.RLock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for conn, wmu := range s.clients {
		clients[conn] = wmu
	}
	s.mu.RUnlock()

	for conn, wmu := range clients {
		s.write(conn, wmu, data)
	}
	s.logger.Debug("update published", "type", kind, "clients", len(clients))
	return nil
}

func (s *Server) write(conn *websocket.Conn, wmu *sync.Mutex, data []byte) {
	wmu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	wmu.Unlock()
	if err != nil {
		s.drop(conn)
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	var t template.Template
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPatchSize)).Decode(&t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.PublishTemplate(&t); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.PublishPatch(id, body); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, template.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
