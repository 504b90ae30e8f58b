package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/hub"
	"github.com/Logic-Phantom/DataVille/pkg/layout"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

// QuoteReader is the simulator surface the HTTP handlers need.
type QuoteReader interface {
	GetQuote(symbol string) (models.Quote, bool)
	AllQuotes() map[string]models.Quote
}

// Handler serves the REST surface: liveness, health, quote lookups,
// the city layout, and hub statistics.
type Handler struct {
	quotes   QuoteReader
	hub      *hub.Hub
	logger   *zap.Logger
	started  time.Time
	listings []models.Listing
}

func NewHandler(quotes QuoteReader, h *hub.Hub, listings []models.Listing, logger *zap.Logger) *Handler {
	return &Handler{
		quotes:   quotes,
		hub:      h,
		logger:   logger,
		started:  time.Now(),
		listings: listings,
	}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleRoot)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/stocks", h.handleStocks)
	mux.HandleFunc("/api/stocks/", h.handleStock)
	mux.HandleFunc("/api/layout", h.handleLayout)
	mux.HandleFunc("/api/stats", h.handleStats)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "DataVille Backend Server",
		"status":    "running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"memory": map[string]uint64{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_gc":      uint64(mem.NumGC),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleStocks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.quotes.AllQuotes())
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/api/stocks/")
	if symbol == "" {
		http.NotFound(w, r)
		return
	}

	quote, ok := h.quotes.GetQuote(symbol)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Stock not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) handleLayout(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, layout.Generate(h.listings))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected_clients": h.hub.ConnectedCount(),
		"subscriptions":     h.hub.SubscriptionStats(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Write response", zap.Error(err))
	}
}
