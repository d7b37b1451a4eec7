package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kkkkikiki/expedition/internal/ledger"
	"github.com/kkkkikiki/expedition/internal/model"
	"github.com/kkkkikiki/expedition/internal/repository"
	"github.com/kkkkikiki/expedition/internal/service"
	"github.com/kkkkikiki/expedition/internal/vault"
)

// Handler is the thin JSON surface over the expedition service.
type Handler struct {
	svc *service.ExpeditionService
}

// New creates a Handler over the given service.
func New(svc *service.ExpeditionService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /expeditions", h.createExpedition)
	mux.HandleFunc("POST /expeditions/{id}/items", h.commitItems)
	mux.HandleFunc("POST /expeditions/{id}/consume", h.consume)
	mux.HandleFunc("POST /expeditions/{id}/complete", h.complete)
	mux.HandleFunc("POST /expeditions/{id}/cancel", h.cancel)
	mux.HandleFunc("DELETE /expeditions/{id}", h.deleteExpedition)
	mux.HandleFunc("GET /expeditions/{id}/summary", h.summary)
	mux.HandleFunc("GET /expeditions/{id}/events", h.events)
	mux.HandleFunc("GET /expeditions/{id}/participants", h.participants)
	mux.HandleFunc("GET /expeditions/overdue", h.overdue)
	mux.HandleFunc("POST /events/{id}/payments", h.recordPayment)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps domain sentinel errors to HTTP status codes. All of these
// are rejected requests at the caller's boundary, not crashes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrItemsLocked),
		errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrCampaignClosed):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidPayment),
		errors.Is(err, vault.ErrKeyDerivation),
		errors.Is(err, model.ErrInvalidEventQuantity),
		errors.Is(err, model.ErrEmptyName),
		errors.Is(err, model.ErrEmptyOwner),
		errors.Is(err, model.ErrInvalidGrade),
		errors.Is(err, model.ErrInvalidItemQuantity),
		errors.Is(err, model.ErrInvalidItemPrice),
		errors.Is(err, model.ErrEmptyProduct):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

type createExpeditionRequest struct {
	Name     string    `json:"name"`
	OwnerID  string    `json:"owner_id"`
	Deadline time.Time `json:"deadline"`
}

func (h *Handler) createExpedition(w http.ResponseWriter, r *http.Request) {
	var req createExpeditionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	expedition, err := h.svc.CreateExpedition(r.Context(), req.Name, req.OwnerID, req.Deadline)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, expedition)
}

type commitItemsRequest struct {
	Items []struct {
		Product        string `json:"product"`
		Grade          string `json:"grade"`
		Quantity       int64  `json:"quantity"`
		UnitPriceCents int64  `json:"unit_price_cents"`
	} `json:"items"`
}

func (h *Handler) commitItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}
	var req commitItemsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	inputs := make([]service.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		grade, err := model.ParseGrade(item.Grade)
		if err != nil {
			writeError(w, err)
			return
		}
		inputs = append(inputs, service.ItemInput{
			Product:        item.Product,
			Grade:          grade,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	items, err := h.svc.CommitItems(r.Context(), id, inputs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"items": items})
}

type consumeRequest struct {
	ItemID           int64  `json:"item_id"`
	RealIdentifier   string `json:"real_identifier"`
	Quantity         int64  `json:"quantity"`
	UpfrontPaidCents int64  `json:"upfront_paid_cents"`
	PaymentTerm      string `json:"payment_term"`
	SaleRef          string `json:"sale_ref"`
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}
	var req consumeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.Consume(r.Context(), service.ConsumeInput{
		ExpeditionID:     id,
		ItemID:           req.ItemID,
		RealIdentifier:   req.RealIdentifier,
		Quantity:         req.Quantity,
		UpfrontPaidCents: req.UpfrontPaidCents,
		PaymentTerm:      req.PaymentTerm,
		SaleRef:          req.SaleRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"event":     result.Event,
		"pseudonym": result.Pseudonym,
		"completed": result.Completed,
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CompleteExpedition)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CancelExpedition)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*model.Expedition, error)) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}

	expedition, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, expedition)
}

func (h *Handler) deleteExpedition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}

	if err := h.svc.DeleteExpedition(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}

	summary, err := h.svc.GetSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}

	views, err := h.svc.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": views})
}

// participants lists pseudonyms; with ?reveal=1 the owner secret from the
// X-Owner-Secret header gates decryption of real identifiers.
func (h *Handler) participants(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expedition id"})
		return
	}

	reveal := r.URL.Query().Get("reveal") == "1" || r.URL.Query().Get("reveal") == "true"
	ownerSecret := r.Header.Get("X-Owner-Secret")
	if reveal && ownerSecret == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-Owner-Secret header"})
		return
	}

	views, err := h.svc.ListParticipants(r.Context(), id, reveal, ownerSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": views})
}

func (h *Handler) overdue(w http.ResponseWriter, r *http.Request) {
	expeditions, err := h.svc.ListOverdueExpeditions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"expeditions": expeditions})
}

type recordPaymentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}
	var req recordPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	adjustment, err := h.svc.RecordPayment(r.Context(), id, req.AmountCents)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, adjustment)
}
