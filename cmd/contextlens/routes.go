package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaekop/ContextLens/internal/health"
	"github.com/jaekop/ContextLens/internal/session"
	"github.com/jaekop/ContextLens/internal/store"
	"github.com/jaekop/ContextLens/internal/summarize"
)

// defaultRecordLimit is how many persisted records are returned when the
// caller omits the ?limit= query parameter.
const defaultRecordLimit = 20

type deps struct {
	cfg       config
	registry  *session.Registry
	store     *store.Store
	gateway   *summarize.Gateway
	ollama    *summarize.OllamaClient
	checker   *health.Checker
	wsHandler http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/session", d.wsHandler)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/status", d.handleStatus)
	mux.HandleFunc("GET /api/sessions", d.handleSessions)
	mux.HandleFunc("GET /api/models", d.handleModels)
	registerRecordRoutes(mux, d.store)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"sessions_active": d.registry.Len(),
		"engines":         d.gateway.Engines(),
		"active_engine":   d.cfg.engine,
		"vision":          d.gateway.HasVision(),
		"persistence":     d.store != nil,
		"collaborators":   d.checker.Check(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (d deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := d.registry.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": infos,
		"count":    len(infos),
	})
}

func (d deps) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := d.ollama.ListModels(r.Context())
	if err != nil {
		slog.Error("list ollama models", "error", err)
		models = []string{d.cfg.ollamaModel}
	}
	resp := map[string]interface{}{
		"llm": map[string]interface{}{
			"active":  d.cfg.ollamaModel,
			"models":  models,
			"engines": d.gateway.Engines(),
		},
		"vision": map[string]interface{}{
			"available": d.gateway.HasVision(),
			"model":     d.cfg.geminiModel,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func registerRecordRoutes(mux *http.ServeMux, st *store.Store) {
	mux.HandleFunc("GET /api/records", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultRecordLimit)
		offset := queryInt(r, "offset", 0)
		records, total, err := st.ListSessions(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"records": records, "total": total})
	})

	mux.HandleFunc("GET /api/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		rec, err := st.GetSession(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
