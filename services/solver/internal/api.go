package internal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forge-ai/solver/services/solver/internal/pipeline"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/shared/events"
)

const maxBodyBytes = 32 << 20

func (s *Service) serveAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.APIPort,
		Handler:      cors(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/solve", s.handleSolve)
	mux.HandleFunc("POST /api/debug", s.handleDebug)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/result", s.handleResult)
	mux.HandleFunc("GET /api/runs/{queue}", s.handleRun)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	return mux
}

type solveBody struct {
	Screenshots []string `json:"screenshots"`
	Language    string   `json:"language"`
}

type debugBody struct {
	Screenshots []string            `json:"screenshots"`
	Language    string              `json:"language"`
	Code        string              `json:"code"`
	Problem     *events.ProblemInfo `json:"problem"`
}

func (s *Service) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solveBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	images, err := s.decodeShots(req.Screenshots)
	if err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	if req.Language == "" {
		req.Language = s.cfg.Language
	}

	s.startSolve(images, req.Language)
	jsonOK(w, map[string]any{"status": "processing", "queue": events.QueueMain, "screenshots": len(images)}, 202)
}

func (s *Service) handleDebug(w http.ResponseWriter, r *http.Request) {
	var req debugBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}

	var problem events.ProblemInfo
	switch {
	case req.Problem != nil && !req.Problem.Empty():
		problem = *req.Problem
	case s.cache.Solution() != nil:
		problem = s.cache.Solution().Problem
	default:
		jsonErr(w, "no problem extracted yet, solve first", 409)
		return
	}

	images, err := s.decodeShots(req.Screenshots)
	if err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	if req.Language == "" {
		req.Language = s.cfg.Language
	}
	if req.Code == "" {
		req.Code = s.cache.LatestCode()
	}

	s.startDebug(pipeline.DebugRequest{
		Problem:      problem,
		Images:       images,
		Language:     req.Language,
		PreviousCode: req.Code,
	})
	jsonOK(w, map[string]any{"status": "processing", "queue": events.QueueDebug, "screenshots": len(images)}, 202)
}

// handleCancel aborts one queue, or resets everything when no queue is named.
func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	switch queue := r.URL.Query().Get("queue"); queue {
	case events.QueueMain, events.QueueDebug:
		jsonOK(w, map[string]any{"queue": queue, "cancelled": s.orch.Cancel(queue)}, 200)
	case "":
		s.orch.Reset()
		s.cache.Clear()
		jsonOK(w, map[string]any{"reset": true}, 200)
	default:
		jsonErr(w, "unknown queue "+queue, 400)
	}
}

func (s *Service) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	_, err := s.registry.Active()
	jsonOK(w, map[string]any{"settings": s.registry.Settings(), "configured": err == nil}, 200)
}

// handlePutConfig applies settings from the UI. An empty or masked key keeps
// the key the environment provides for that provider.
func (s *Service) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req provider.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonErr(w, "invalid body", 400)
		return
	}
	name, err := provider.ParseName(string(req.Provider))
	if err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	req.Provider = name
	if key := strings.TrimSpace(req.APIKey); key == "" || strings.Contains(key, "...") || key == "****" {
		req.APIKey = s.cfg.KeyFor(name)
	}

	if err := s.registry.Configure(req); err != nil {
		jsonErr(w, err.Error(), 400)
		return
	}
	_, activeErr := s.registry.Active()
	jsonOK(w, map[string]any{"settings": s.registry.Settings(), "configured": activeErr == nil}, 200)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings := s.registry.Settings()
	_, err := s.registry.Active()
	jsonOK(w, map[string]any{
		"status":     "online",
		"provider":   settings.Provider,
		"configured": err == nil,
		"main":       s.orch.Snapshot(events.QueueMain).State,
		"debug":      s.orch.Snapshot(events.QueueDebug).State,
		"clients":    s.hub.Clients(),
	}, 200)
}

func (s *Service) handleResult(w http.ResponseWriter, r *http.Request) {
	sol := s.cache.Solution()
	if sol == nil {
		jsonErr(w, "no result yet", 404)
		return
	}
	jsonOK(w, map[string]any{"solution": sol, "debug": s.cache.Debug()}, 200)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	if queue != events.QueueMain && queue != events.QueueDebug {
		jsonErr(w, "unknown queue "+queue, 404)
		return
	}
	jsonOK(w, s.orch.Snapshot(queue), 200)
}

// decodeShots turns base64 screenshots, optionally as data URLs, into
// normalized images.
func (s *Service) decodeShots(shots []string) ([]provider.Image, error) {
	if len(shots) == 0 {
		return nil, fmt.Errorf("screenshots required")
	}
	raw := make([][]byte, 0, len(shots))
	for i, shot := range shots {
		if j := strings.Index(shot, ";base64,"); strings.HasPrefix(shot, "data:") && j >= 0 {
			shot = shot[j+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(shot))
		if err != nil {
			return nil, fmt.Errorf("screenshot %d: invalid base64", i+1)
		}
		raw = append(raw, data)
	}
	return s.shots.NormalizeAll(raw)
}

func jsonOK(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}
