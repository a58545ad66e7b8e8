package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberwake-mud/emberwake/pkg/events"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// WebServer provides HTTP/WebSocket transport alongside the telnet game
// server: health, metrics, JWT login, and a websocket client endpoint.
type WebServer struct {
	game     *Game
	httpSrv  *http.Server
	mux      *http.ServeMux
	auth     *AuthService
	rl       *rateLimiter
	upgrader websocket.Upgrader
}

// NewWebServer creates a web server bound to the game. All settings come
// from the game's config.
func NewWebServer(game *Game) *WebServer {
	conf := game.Conf
	ws := &WebServer{
		game: game,
		mux:  http.NewServeMux(),
		auth: NewAuthService(game, conf.JWTSecret, conf.JWTExpiry),
		rl:   newRateLimiter(conf.WebRateLimit),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(conf.WebCORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range conf.WebCORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}

	ws.registerRoutes()
	return ws
}

// Auth returns the auth service, for tests that mint tokens directly.
func (ws *WebServer) Auth() *AuthService {
	return ws.auth
}

// registerRoutes sets up all HTTP routes.
func (ws *WebServer) registerRoutes() {
	conf := ws.game.Conf

	// Apply global middleware: CORS -> rate limit
	handler := http.Handler(ws.mux)
	handler = rateLimitMiddleware(ws.rl, handler)
	handler = corsMiddleware(conf.WebCORSOrigins, handler)

	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.WebHost, conf.WebPort),
		Handler: handler,
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)
	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	ws.mux.Handle("GET /metrics", ws.game.Metrics.Handler())
	ws.mux.HandleFunc("/", ws.handleRoot)
}

// Start begins listening. Uses HTTPS when TLS material is available,
// falls back to plain HTTP otherwise (development mode).
func (ws *WebServer) Start() error {
	conf := ws.game.Conf

	// Rate limiter cleanup goroutine
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ws.rl.cleanup()
		}
	}()

	hasTLS := conf.WebDomain != "" || (conf.TLSCert != "" && conf.TLSKey != "") || conf.CertDir != ""
	if hasTLS {
		result, err := SetupTLS(conf.WebDomain, conf.TLSCert, conf.TLSKey, conf.CertDir)
		if err != nil {
			log.Printf("web: TLS setup failed (%v), falling back to HTTP", err)
		} else {
			ws.httpSrv.TLSConfig = result.Config

			// Let's Encrypt needs an HTTP listener on port 80 for ACME
			// challenges.
			if result.AutocertMgr != nil {
				go func() {
					httpSrv := &http.Server{
						Addr:    ":80",
						Handler: result.AutocertMgr.HTTPHandler(nil),
					}
					log.Printf("ACME HTTP challenge listener on :80")
					if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("ACME HTTP listener error: %v", err)
					}
				}()
			}

			log.Printf("Web server listening on %s (HTTPS)", ws.httpSrv.Addr)
			err = ws.httpSrv.ListenAndServeTLS("", "")
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	}

	log.Printf("Web server listening on %s (HTTP)", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// --- WebSocket Handler ---

// WSMessage is the JSON message format for WebSocket communication.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

// handleWebSocket upgrades an HTTP connection to a WebSocket and creates
// a game Descriptor for the client.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via query param or header
	var claims *Claims
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[7:]
		}
	}
	if token != "" {
		var err error
		claims, err = ws.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	wsConn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	// Use X-Forwarded-For or X-Real-IP if behind a reverse proxy
	remoteAddr := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can be comma-separated; first entry is the client
		if idx := strings.Index(xff, ","); idx >= 0 {
			remoteAddr = strings.TrimSpace(xff[:idx])
		} else {
			remoteAddr = strings.TrimSpace(xff)
		}
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		remoteAddr = strings.TrimSpace(xri)
	}
	d, wc := newWSDescriptor(ws.game, wsConn, remoteAddr)
	ws.game.Conns.Add(d)
	ws.game.Metrics.SetSessions(ws.game.Conns.Count())

	if claims != nil {
		if player, ok := ws.game.World.Player(claims.PlayerRef); ok {
			ws.completeWSLogin(d, wc, player)
		} else {
			wc.sendJSON(WSMessage{Type: "error", Text: "That character no longer exists."})
		}
	} else {
		wc.sendJSON(WSMessage{Type: "welcome", Text: "Connected. Send {\"type\":\"login\",\"command\":\"connect name password\"} to authenticate."})
	}

	go wsReadLoop(ws, d, wc)
}

// wsConn holds the WebSocket connection and its write mutex.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

// newWSDescriptor creates a Descriptor configured for WebSocket
// transport. Its Send, prompt and event paths are wired to write JSON.
func newWSDescriptor(game *Game, conn *websocket.Conn, addr string) (*Descriptor, *wsConn) {
	wc := &wsConn{conn: conn}
	id := game.Conns.NextID()
	d := &Descriptor{
		ID:        id,
		Conn:      nullConn{}, // No raw TCP conn for WS
		State:     ConnLogin,
		Addr:      addr,
		ConnTime:  time.Now(),
		LastCmd:   time.Now(),
		Retries:   3,
		Transport: TransportWebSocket,
	}
	d.SendFunc = func(msg string) {
		wc.sendJSON(WSMessage{Type: "text", Text: msg})
	}
	d.PromptFunc = func() {
		wc.sendJSON(WSMessage{Type: "prompt"})
	}
	d.ReceiveFunc = func(ev events.Event) {
		wc.sendJSON(WSMessage{
			Type: ev.Type.String(),
			Text: ev.Text,
			Data: ev.Data,
		})
	}
	return d, wc
}

func wsReadLoop(ws *WebServer, d *Descriptor, wc *wsConn) {
	g := ws.game
	defer func() {
		if !d.IsClosed() {
			g.DisconnectPlayer(d, "websocket closed")
		} else {
			g.Conns.Remove(d)
			g.Metrics.SetSessions(g.Conns.Count())
		}
		wc.conn.Close()
		log.Printf("NET: [ws:%d] websocket closed from %s", d.ID, d.Addr)
	}()

	for {
		_, msgBytes, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("NET: [ws:%d] read error: %v", d.ID, err)
			}
			return
		}

		d.LastCmd = time.Now()
		d.BytesRecv += len(msgBytes)
		g.Metrics.AddBytesRecv(len(msgBytes))

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "command":
			if d.State == ConnLogin {
				handleWSLogin(ws, d, wc, msg.Command)
			} else {
				d.CmdCount++
				DispatchCommand(g, d, msg.Command)
			}
		case "login":
			handleWSLogin(ws, d, wc, msg.Command)
		default:
			wc.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}

		if d.IsClosed() {
			return
		}
	}
}

func handleWSLogin(ws *WebServer, d *Descriptor, wc *wsConn, input string) {
	g := ws.game
	command, user, password := ParseConnect(input)
	if !strings.HasPrefix(command, "co") {
		wc.sendJSON(WSMessage{Type: "error", Text: "Use: connect <name> <password>"})
		return
	}

	player, ok := g.World.PlayerByName(user)
	if !ok || !CheckPassword(player.PassHash, password) {
		wc.sendJSON(WSMessage{Type: "error", Text: "Invalid credentials"})
		return
	}

	if NeedsRehash(player.PassHash) {
		if newHash, err := HashPassword(password); err == nil {
			player.PassHash = newHash
			g.PersistPlayer(player)
		}
	}

	ws.completeWSLogin(d, wc, player)
}

// completeWSLogin binds an authenticated player to a websocket descriptor
// and shows them where they are.
func (ws *WebServer) completeWSLogin(d *Descriptor, wc *wsConn, player *world.Player) {
	g := ws.game
	already := g.Conns.IsConnected(player.Ref)
	g.Conns.Login(d, player)
	log.Printf("NET: [ws:%d] player %s(%s) connected from %s", d.ID, player.Name, player.Ref, d.Addr)

	wc.sendJSON(WSMessage{
		Type: "login",
		Data: map[string]any{
			"player_ref":  int(player.Ref),
			"player_name": player.Name,
		},
	})

	if !already {
		g.AnnounceToRoom(player.Location, player.Ref, events.EvConnect,
			fmt.Sprintf("%s has connected.", player.Name))
	}

	g.ShowRoom(d, player.Location)
	d.Prompt()
}

// --- Auth HTTP Handlers ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	token := authHeader[7:]
	newToken, err := ws.auth.RefreshToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": newToken})
}

// --- Health and Root Handlers ---

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	rooms, things, players := ws.game.World.Counts()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(ws.game.Uptime).Seconds(),
		"sessions":       ws.game.Conns.Count(),
		"rooms":          rooms,
		"things":         things,
		"players":        players,
	})
}

func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s\n\ntelnet port %d, websocket /ws\n",
		VersionString(), ws.game.Conf.Port)
}
