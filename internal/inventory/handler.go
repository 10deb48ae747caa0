package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.postAdjustment)
	r.Get("/items/{id}/balance", h.getBalance)
	r.Get("/items/{id}/card", h.getStockCard)
}

type adjustmentRequest struct {
	ItemID   int64   `json:"item_id"`
	Qty      float64 `json:"qty"`
	UnitCost float64 `json:"unit_cost"`
	Note     string  `json:"note"`
	ActorID  int64   `json:"actor_id"`
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	movement, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ItemID:   req.ItemID,
		Qty:      req.Qty,
		UnitCost: req.UnitCost,
		Note:     req.Note,
		ActorID:  req.ActorID,
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err), slog.Int64("item_id", req.ItemID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			// Items with no recorded movements read as empty, not missing.
			httpx.JSON(w, http.StatusOK, Balance{ItemID: id})
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) getStockCard(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	filter := MovementFilter{ItemID: id}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.To = t.Add(24*time.Hour - time.Second)
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	movements, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Negative Stock", err.Error())
	case errors.Is(err, ErrBalanceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
