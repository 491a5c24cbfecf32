// Admin API server: REST endpoints for the session lifecycle and order
// queries, plus a WebSocket feed of live gateway events.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pasarlink/gateway/pkg/app"
	"github.com/pasarlink/gateway/pkg/config"
	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/orchestrator"
	"github.com/pasarlink/gateway/pkg/transport"
)

// Server is the HTTP admin server for the gateway.
type Server struct {
	config      *config.Config
	manager     *transport.Manager
	orch        *orchestrator.Orchestrator
	orders      *app.OrderService
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
}

// NewServer creates a new admin server instance. An empty configured API key
// is replaced by a random per-session key, printed once at startup.
func NewServer(
	cfg *config.Config,
	manager *transport.Manager,
	orch *orchestrator.Orchestrator,
	orders *app.OrderService,
	bus domain.EventBus,
) *Server {
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			logger.WarnCF("api", "no API key configured; generated a session key", map[string]interface{}{
				"api_key": cfg.Gateway.APIKey,
			})
		}
	}
	s := &Server{
		config:    cfg,
		manager:   manager,
		orch:      orch,
		orders:    orders,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.eventBridge = NewEventBridge(bus, s.wsHub)
	return s
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	mux.HandleFunc("/api/connection/status", s.handleConnectionStatus)
	mux.HandleFunc("/api/connection/qr", s.handleConnectionQR)
	mux.HandleFunc("/api/connection/restart", s.handleConnectionRestart)
	mux.HandleFunc("/api/connection/logout", s.handleConnectionLogout)

	mux.HandleFunc("/api/admin/send", s.handleAdminSend)
	mux.HandleFunc("/api/orders", s.handleOrders)

	// WebSocket for live events
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "admin API server starting", map[string]interface{}{
		"addr": addr,
	})

	go s.wsHub.Run(ctx)
	s.eventBridge.Run()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.GetStatus())
}

func (s *Server) handleConnectionQR(w http.ResponseWriter, r *http.Request) {
	png, ok := s.manager.QRImage()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pairing QR available"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"qr":       png,
		"encoding": "base64/png",
	})
}

func (s *Server) handleConnectionRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	s.manager.Restart()
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarting"})
}

func (s *Server) handleConnectionLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	if err := s.manager.Logout(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleAdminSend lets a human operator reply in a customer's thread. The
// reply is recorded as an assistant turn so the model keeps context.
func (s *Server) handleAdminSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone and message required"})
		return
	}

	phone := order.NormalizePhone(req.Phone, s.config.Gateway.CountryCode)
	if err := s.manager.SendText(r.Context(), phone, req.Message); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrLoggedOut) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if err := s.orch.RecordOperatorReply(phone, req.Message); err != nil {
		logger.WarnCF("api", "sent but failed to record operator reply", map[string]interface{}{
			"phone": phone,
			"error": err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "phone": phone})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	status := order.Status(strings.ToUpper(r.URL.Query().Get("status")))

	result, err := s.orders.ListOrders(phone, status)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if result == nil {
		result = []*order.Order{}
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
