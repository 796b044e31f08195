package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/engine/runtime"
	"CorpusAgent/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var serveAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	orch, err := newOrchestrator(cfg)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		return
	}

	addr := serveAddrFlag
	if addr == "" {
		addr = cfg.ListenAddr
	}

	srv := &apiServer{orch: orch}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Post("/api/chat", srv.handleChat)
	r.Post("/api/interrupt/{turnID}", srv.handleInterrupt)
	r.Get("/api/threads", srv.handleThreads)
	r.Get("/api/threads/{threadID}/messages", srv.handleMessages)

	fmt.Printf("🌐 Corpus Agent API listening on %s\n", addr)
	logger.Info("Serve", "HTTP server starting", map[string]interface{}{
		"addr": addr,
	})
	if err := http.ListenAndServe(addr, r); err != nil {
		fmt.Printf("Server error: %v\n", err)
	}
}

type apiServer struct {
	orch *runtime.Orchestrator
}

type chatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`
	Model    string `json:"model,omitempty"`
}

// handleChat runs one turn and streams its events as NDJSON, one event per
// line, terminated by a [DONE] sentinel line.
func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrValidation, "invalid request body")
		return
	}

	stream, err := s.orch.Send(r.Context(), runtime.TurnRequest{
		ThreadID:  req.ThreadID,
		Model:     req.Model,
		UserText:  req.Message,
		Streaming: true,
	})
	if err != nil {
		writeError(w, statusForError(err), codeForError(err), err.Error())
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for {
		e, err := stream.Recv(r.Context())
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("Serve", "Chat stream aborted", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		if err := enc.Encode(e); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprintln(w, "[DONE]")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *apiServer) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	turnID := chi.URLParam(r, "turnID")
	interrupted := s.orch.Interrupt(turnID)
	writeJSON(w, http.StatusOK, map[string]any{
		"turn_id":     turnID,
		"interrupted": interrupted,
	})
}

func (s *apiServer) handleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.orch.ListThreads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, api.ErrStoreError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *apiServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	items, err := s.orch.ThreadMessages(r.Context(), threadID)
	if err != nil {
		writeError(w, statusForError(err), codeForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"messages":  items,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func statusForError(err error) int {
	switch codeForError(err) {
	case api.ErrThreadNotFound, api.ErrTurnNotFound:
		return http.StatusNotFound
	case api.ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// codeForError maps engine errors onto wire error codes by their prefix.
func codeForError(err error) string {
	msg := err.Error()
	for _, code := range []string{
		api.ErrValidation,
		api.ErrThreadNotFound,
		api.ErrTurnNotFound,
		api.ErrRemoteAgent,
		api.ErrStoreError,
	} {
		if len(msg) >= len(code) && msg[:len(code)] == code {
			return code
		}
	}
	return api.ErrStoreError
}
