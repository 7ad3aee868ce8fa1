// Package api exposes the HTTP surface: sync triggering, sync status, and
// daily snapshot queries.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/service"
	"github.com/wallet-tracker/internal/types"
)

// defaultSnapshotRange bounds the daily query when no range is given
const defaultSnapshotRange = 90 * 24 * time.Hour

// Handler holds the HTTP handlers and their dependencies
type Handler struct {
	syncs  *service.SyncService
	logger *logging.Logger
}

// NewHandler creates the API handler
func NewHandler(syncs *service.SyncService, logger *logging.Logger) *Handler {
	return &Handler{syncs: syncs, logger: logger}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Error: message})
}

type syncRequest struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
	Chain         string `json:"chain"`
}

func (r *syncRequest) chainID() types.ChainID {
	if r.Chain == "" {
		return types.ChainSolana
	}
	return types.ChainID(r.Chain)
}

// TriggerSync handles POST /api/portfolio/sync
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "userId and walletAddress are required")
		return
	}

	rec, err := h.syncs.Trigger(r.Context(), req.UserID, req.WalletAddress, req.chainID())
	if err != nil {
		h.logger.WithError(err).Error("Failed to trigger sync")
		writeError(w, http.StatusInternalServerError, "failed to trigger sync")
		return
	}

	writeJSON(w, http.StatusAccepted, apiResponse{Success: true, Data: rec})
}

// SyncStatus handles GET /api/portfolio/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	wallet := r.URL.Query().Get("walletAddress")
	if userID == "" || wallet == "" {
		writeError(w, http.StatusBadRequest, "userId and walletAddress are required")
		return
	}
	chain := types.ChainSolana
	if c := r.URL.Query().Get("chain"); c != "" {
		chain = types.ChainID(c)
	}

	rec, err := h.syncs.GetStatus(r.Context(), userID, wallet, chain)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load sync status")
		writeError(w, http.StatusInternalServerError, "failed to load sync status")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no sync found for wallet")
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: rec})
}

// DailySnapshots handles GET /api/portfolio/daily
func (h *Handler) DailySnapshots(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	wallet := r.URL.Query().Get("walletAddress")
	if userID == "" || wallet == "" {
		writeError(w, http.StatusBadRequest, "userId and walletAddress are required")
		return
	}
	chain := types.ChainSolana
	if c := r.URL.Query().Get("chain"); c != "" {
		chain = types.ChainID(c)
	}

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.Add(-defaultSnapshotRange)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		from = parsed.UTC()
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		to = parsed.UTC()
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to date precedes from date")
		return
	}

	snaps, err := h.syncs.GetSnapshots(r.Context(), userID, wallet, chain, from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load daily snapshots")
		writeError(w, http.StatusInternalServerError, "failed to load daily snapshots")
		return
	}
	if snaps == nil {
		// Empty list, not null, for clients
		snaps = []*models.DailySnapshot{}
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: snaps})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]string{"status": "ok"}})
}
