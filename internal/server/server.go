package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/roadmap/internal/diag"
	"github.com/shaunagostinho/roadmap/internal/geo"
	"github.com/shaunagostinho/roadmap/internal/plugin"
)

// Server exposes the provider dispatcher over HTTP and broadcasts
// notifications to WebSocket clients.
type Server struct {
	cfg        *Config
	registry   *plugin.Registry
	dispatcher *plugin.Dispatcher
	recorder   *diag.Recorder
	webFS      fs.FS

	// builtinMu keeps a built-in activation and the query that follows it
	// together; the map database has a single active region.
	builtinMu sync.Mutex

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Event is the JSON structure sent to all WebSocket clients.
type Event struct {
	Type      string `json:"type"` // "repaint", "layer", "unregistered", "providers"
	Provider  int    `json:"provider,omitempty"`
	MaxPen    int    `json:"maxPen,omitempty"`
	Layer     int    `json:"layer,omitempty"`
	Thickness int    `json:"thickness,omitempty"`
	PenCount  int    `json:"penCount,omitempty"`

	Providers []ProviderInfo `json:"providers,omitempty"`
	Stamp     int64          `json:"stamp"` // Unix ms
}

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// New creates a new Server.
func New(cfg *Config, registry *plugin.Registry, dispatcher *plugin.Dispatcher, recorder *diag.Recorder, webFS fs.FS) *Server {
	return &Server{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		recorder:   recorder,
		webFS:      webFS,
		clients:    make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/providers", s.handleProviders)
	mux.HandleFunc("/api/providers/unregister", s.handleUnregister)
	mux.HandleFunc("/api/line/", s.handleLine)
	mux.HandleFunc("/api/override/line", s.handleOverrideLine)
	mux.HandleFunc("/api/override/pen", s.handleOverridePen)
	mux.HandleFunc("/api/connected", s.handleConnected)
	mux.HandleFunc("/api/closest", s.handleClosest)
	mux.HandleFunc("/api/repaint", s.handleRepaint)
	mux.HandleFunc("/api/layer", s.handleLayer)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	return mux
}

// Run starts the HTTP server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", n)

	// Send the current provider table
	hello := Event{Type: "providers", Providers: s.providerInfo(), Stamp: time.Now().UnixMilli()}
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive only)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) broadcast(ev Event) {
	ev.Stamp = time.Now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) providerInfo() []ProviderInfo {
	entries := s.registry.Providers()
	out := make([]ProviderInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, ProviderInfo{
			ID:           e.ID,
			Name:         e.Provider.Name(),
			Capabilities: plugin.Capabilities(e.Provider),
		})
	}
	return out
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.providerInfo())
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := intParam(r, "id", -1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.registry.Unregister(id) {
		http.Error(w, fmt.Sprintf("provider %d not registered", id), http.StatusNotFound)
		return
	}
	s.broadcast(Event{Type: "unregistered", Provider: id})
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleLine serves the single-owner queries under /api/line/<query>.
func (s *Server) handleLine(w http.ResponseWriter, r *http.Request) {
	line, err := lineParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := strings.TrimPrefix(r.URL.Path, "/api/line/")
	if line.IsBuiltin() {
		s.builtinMu.Lock()
		defer s.builtinMu.Unlock()
		if query != "activate" {
			if err := s.dispatcher.ActivateDB(line); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
		}
	}

	switch query {
	case "activate":
		if err := s.dispatcher.ActivateDB(line); err != nil {
			writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, map[string]any{"ok": true})

	case "distance":
		pos, err := positionParams(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, ok := s.dispatcher.Distance(pos, line)
		writeJSON(w, map[string]any{"match": ok, "neighbour": n})

	case "from":
		writeJSON(w, s.dispatcher.LineFrom(line))

	case "to":
		writeJSON(w, s.dispatcher.LineTo(line))

	case "street":
		writeJSON(w, s.dispatcher.StreetOf(line))

	case "fullname":
		writeJSON(w, map[string]string{"name": s.dispatcher.StreetFullName(line)})

	case "properties":
		writeJSON(w, s.dispatcher.StreetProperties(line))

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleOverrideLine(w http.ResponseWriter, r *http.Request) {
	line, err := lineParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]int{
		"line": s.dispatcher.OverrideLine(line.LineID, line.Category, line.Region),
	})
}

func (s *Server) handleOverridePen(w http.ResponseWriter, r *http.Request) {
	line, err := lineParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := intParam(r, "kind", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pen, ok := s.dispatcher.OverridePen(line.LineID, line.Category, line.Region, kind)
	writeJSON(w, map[string]any{"override": ok, "pen": pen})
}

func (s *Server) handleConnected(w http.ResponseWriter, r *http.Request) {
	pos, err := positionParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	max, err := intParam(r, "max", 16)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lines := s.dispatcher.FindConnectedLines(pos, max)
	if lines == nil {
		lines = []plugin.Line{}
	}
	writeJSON(w, lines)
}

func (s *Server) handleClosest(w http.ResponseWriter, r *http.Request) {
	pos, err := positionParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	max, err := intParam(r, "max", 8)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var categories []int
	if v := r.URL.Query().Get("categories"); v != "" {
		for _, c := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(c))
			if err != nil {
				http.Error(w, fmt.Sprintf("bad category %q", c), http.StatusBadRequest)
				return
			}
			categories = append(categories, n)
		}
	}
	neighbours := s.dispatcher.Closest(pos, categories, nil, max)
	if neighbours == nil {
		neighbours = []plugin.Neighbour{}
	}
	writeJSON(w, neighbours)
}

func (s *Server) handleRepaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	maxPen, err := intParam(r, "max_pen", 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.dispatcher.ScreenRepaint(maxPen)
	s.broadcast(Event{Type: "repaint", MaxPen: maxPen})
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var vals [3]int
	for i, name := range []string{"layer", "thickness", "pens"} {
		v, err := intParam(r, name, -1)
		if err != nil || v < 0 {
			http.Error(w, fmt.Sprintf("missing or bad %s", name), http.StatusBadRequest)
			return
		}
		vals[i] = v
	}
	s.dispatcher.AdjustLayer(vals[0], vals[1], vals[2])
	s.broadcast(Event{Type: "layer", Layer: vals[0], Thickness: vals[1], PenCount: vals[2]})
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		v := r.URL.Query().Get("enabled")
		s.recorder.SetEnabled(v == "1" || v == "true" || v == "yes")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"count":   s.recorder.Count(),
		"enabled": s.recorder.IsEnabled(),
	}
	if last, ok := s.recorder.Last(); ok {
		resp["last"] = last
	}
	writeJSON(w, resp)
}

func lineParams(r *http.Request) (plugin.Line, error) {
	var vals [4]int
	for i, name := range []string{"provider", "line", "category", "region"} {
		v, err := intParam(r, name, 0)
		if err != nil {
			return plugin.Line{}, err
		}
		vals[i] = v
	}
	return plugin.NewLine(vals[0], vals[1], vals[2], vals[3]), nil
}

func positionParams(r *http.Request) (geo.Position, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return geo.Position{}, fmt.Errorf("bad lat %q", q.Get("lat"))
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return geo.Position{}, fmt.Errorf("bad lon %q", q.Get("lon"))
	}
	return geo.FromDegrees(lat, lon), nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", name, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}
