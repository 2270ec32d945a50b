package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/models"
	"github.com/cosmescan/backend/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, this should be more restrictive
	},
}

// Pipeline is the analysis entry point the server drives.
type Pipeline interface {
	Run(ctx context.Context, req *models.ScanRequest, notify func(pipeline.Stage)) (*pipeline.Result, error)
	ExtractOnly(ctx context.Context, folder string) (string, error)
	History(ctx context.Context, limit int) ([]*models.ScanLog, error)
}

type Server struct {
	log      *logger.Logger
	pipeline Pipeline
	clients  sync.Map
}

func New(p Pipeline, log *logger.Logger) *Server {
	return &Server{
		log:      log.With("service", "server"),
		pipeline: p,
	}
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start(port string) error {
	srv := &http.Server{Addr: ":" + port, Handler: s.Routes()}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.log.Info("starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Fatal("listen and serve", "error", err)
		}
	}()

	<-sigChan
	s.log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/extract", s.handleExtract)
	mux.HandleFunc("/scans", s.handleScans)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.ErrValidation, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, err, "missing required parameters")
		return
	}

	result, err := s.pipeline.Run(r.Context(), &req, nil)
	if err != nil {
		s.log.Error("analyze failed", "barcode", req.Barcode, "error", err)
		s.writeError(w, err, "analysis failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		FolderPath string `json:"folder_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FolderPath == "" {
		s.writeError(w, errs.ErrValidation, "folder_path is required")
		return
	}

	text, err := s.pipeline.ExtractOnly(r.Context(), req.FolderPath)
	if err != nil {
		s.log.Error("extract failed", "folder", req.FolderPath, "error", err)
		s.writeError(w, err, "text extraction failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"ocr_result": text})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := s.pipeline.History(r.Context(), limit)
	if err != nil {
		s.log.Error("history failed", "error", err)
		s.writeError(w, err, "failed to retrieve scans")
		return
	}
	if logs == nil {
		logs = []*models.ScanLog{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	s.clients.Store(clientID, conn)
	defer s.clients.Delete(clientID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendError(conn, "invalid message format")
			continue
		}

		s.handleWebSocketMessage(r.Context(), conn, msg.Type, msg.Data)
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, messageType string, data json.RawMessage) {
	switch messageType {
	case "analyze":
		s.handleWSAnalyze(ctx, conn, data)
	case "get_history":
		s.handleWSHistory(ctx, conn)
	default:
		s.sendError(conn, "unknown message type")
	}
}

func (s *Server) handleWSAnalyze(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var req models.ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(conn, "invalid analyze request")
		return
	}
	if err := req.Validate(); err != nil {
		s.sendError(conn, err.Error())
		return
	}

	// Stream each completed stage so the client can show progress.
	result, err := s.pipeline.Run(ctx, &req, func(stage pipeline.Stage) {
		s.sendMessage(conn, "stage", map[string]string{"stage": string(stage)})
	})
	if err != nil {
		s.log.Error("ws analyze failed", "barcode", req.Barcode, "error", err)
		s.sendError(conn, "analysis failed: "+err.Error())
		return
	}

	s.sendMessage(conn, "analysis_result", result)
}

func (s *Server) handleWSHistory(ctx context.Context, conn *websocket.Conn) {
	logs, err := s.pipeline.History(ctx, 20)
	if err != nil {
		s.log.Error("ws history failed", "error", err)
		s.sendError(conn, "failed to retrieve history")
		return
	}

	s.sendMessage(conn, "history", map[string]any{"items": logs})
}

func (s *Server) sendMessage(conn *websocket.Conn, messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("failed to send message", "type", messageType, "error", err)
	}
}

func (s *Server) sendError(conn *websocket.Conn, message string) {
	msg := map[string]any{
		"type":    "error",
		"message": message,
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("failed to send error message", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses and reports the
// underlying error text alongside a generic message.
func (s *Server) writeError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, map[string]any{
		"error":   message,
		"message": err.Error(),
	})
}
