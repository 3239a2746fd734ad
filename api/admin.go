package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tfkr-ae/formrelay/domain"
)

type AdminHandler struct {
	relay  Relay
	store  Store
	logger *slog.Logger
}

func NewAdminHandler(relay Relay, store Store, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{relay: relay, store: store, logger: logger}
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListPending()
	if err != nil {
		h.logger.Error("listing pending submissions", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list pending submissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"total":       len(subs),
	})
}

func (h *AdminHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	sub, err := h.store.GetPending(traceID)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("getting pending submission", "trace_id", traceID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not get submission")
		return
	}

	attempts, err := h.store.GetAttempts(traceID)
	if err != nil {
		h.logger.Error("getting attempts", "trace_id", traceID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not get attempts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submission": sub,
		"attempts":   attempts,
	})
}

// Retry forwards an unresolved submission again. The round runs to completion even
// if the operator disconnects.
func (h *AdminHandler) Retry(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	res, err := h.relay.Retry(context.WithoutCancel(r.Context()), traceID)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("retrying submission", "trace_id", traceID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not retry submission")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.relay.Stats()
	if err != nil {
		h.logger.Error("computing stats", "err", err)
		writeError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
