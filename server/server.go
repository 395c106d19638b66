package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/wfunc/landfluss/broadcast"
	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/monitor"
	"github.com/wfunc/landfluss/network"
	"github.com/wfunc/landfluss/room"
	gameserver_rpc "github.com/wfunc/landfluss/rpc"
	"github.com/wfunc/landfluss/session"
)

// Options configure the relay.
type Options struct {
	HTTPAddress     string
	RPCAddress      string
	PublicURL       string
	Version         string
	MaxPlayers      int
	TokenSecret     string
	TokenTTL        time.Duration
	Heartbeat       time.Duration
	IdleTimeout     time.Duration
	DeliveryTimeout time.Duration
	ReapInterval    time.Duration
}

const qrSize = 320

// GameServer relays game messages between the peers of a room.
type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	router         *httprouter.Router
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    room.Broadcaster
	monitor        *monitor.Monitor
	tokens         *session.TokenIssuer
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(opts Options) (*GameServer, error) {
	if opts.TokenSecret == "" {
		opts.TokenSecret = uuid.NewString()
		logger.Log.Warn("No token secret configured; resume tokens will not survive a restart")
	}
	tokens, err := session.NewTokenIssuer(opts.TokenSecret, "landfluss", opts.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &GameServer{
		opts:           opts,
		sessionManager: session.NewManager(),
		monitor:        monitor.NewMonitor("landfluss"),
		tokens:         tokens,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.roomManager = room.NewRoomManager(nil, s.monitor)
	rb := broadcast.NewRoomBroadcaster(s.roomManager)
	s.roomManager.SetBroadcaster(rb)
	s.broadcaster = rb

	s.router = httprouter.New()
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/ws/:room", s.handleWebSocket)
	s.router.GET("/qr/:room", s.handleQR)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/version", s.handleVersion)
	s.router.Handler(http.MethodGet, "/metrics", s.monitor.Handler())
	return s, nil
}

// Handler serves the relay's HTTP routes.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

// Rooms exposes the room manager.
func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

// Start serves HTTP and gRPC until ctx is done.
func (s *GameServer) Start(ctx context.Context) error {
	var rpcServer *gameserver_rpc.Server
	if s.opts.RPCAddress != "" {
		var err error
		rpcServer, err = gameserver_rpc.NewServer(s.opts.RPCAddress)
		if err != nil {
			return err
		}
		go func() {
			if err := rpcServer.Start(); err != nil {
				logger.Log.Errorf("RPC server failed: %v", err)
			}
		}()
		defer rpcServer.Stop()
	}

	srv := &http.Server{
		Addr:              s.opts.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Log.Infof("Relay listening on %s", s.opts.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	go s.reapLoop(ctx)

	if rpcServer != nil {
		rpcServer.SetServing(true)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	s.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return err
}

// Shutdown disconnects every peer.
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.roomManager.CloseAll()
		s.sessionManager.CloseAll()
	})
}

func (s *GameServer) reapLoop(ctx context.Context) {
	interval := s.opts.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.reap()
		case <-ctx.Done():
			return
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *GameServer) reap() {
	if n := s.roomManager.Reap(s.opts.IdleTimeout, s.opts.DeliveryTimeout); n > 0 {
		logger.Log.Infof("Reaped %d idle rooms", n)
	}
	s.monitor.SetActiveRooms(s.roomManager.Count())
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.ServeConn(network.NewWSConnection(conn), ps.ByName("room"))
}

// JoinURL is the websocket URL peers use to join roomID.
func (s *GameServer) JoinURL(r *http.Request, roomID string) string {
	if s.opts.PublicURL != "" {
		return strings.TrimSuffix(s.opts.PublicURL, "/") + "/ws/" + roomID
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws/" + roomID
}

func (s *GameServer) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("room")
	if _, ok := s.roomManager.GetRoom(roomID); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(s.JoinURL(r, roomID), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	select {
	case <-s.shutdownChan:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	}
}

func (s *GameServer) handleVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version": s.opts.Version,
		"rooms":   s.roomManager.Count(),
		"peers":   s.sessionManager.Count(),
	})
}
