package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
)

// Handler exposes the ledger over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	accounts *AccountsRepository
	cache    *CachedAccounts
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, accounts *AccountsRepository, cache *CachedAccounts) *Handler {
	return &Handler{logger: logger, service: service, accounts: accounts, cache: cache}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.listEntries)
	r.Get("/entries/{id}", h.getEntry)
	r.Post("/entries", h.postEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)
	r.Put("/accounts/{key}", h.setAccountMapping)
}

type postingLineRequest struct {
	AccountID int64   `json:"account_id"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
}

type postingRequest struct {
	Date      string               `json:"date"`
	Reference string               `json:"reference"`
	Memo      string               `json:"memo"`
	Lines     []postingLineRequest `json:"lines"`
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	lines := make([]PostingLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, PostingLineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	entry, err := h.service.Post(r.Context(), PostingInput{
		Date:         date,
		Reference:    req.Reference,
		SourceModule: "LEDGER.MANUAL",
		SourceID:     uuid.New(),
		Memo:         req.Memo,
		Lines:        lines,
	})
	if err != nil {
		h.logger.Error("post journal entry", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req struct {
		Memo string `json:"memo"`
	}
	_ = httpx.DecodeJSON(r, &req)
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{EntryID: id, Memo: req.Memo})
	if err != nil {
		h.logger.Error("reverse journal entry", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) setAccountMapping(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		AccountID int64 `json:"account_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.accounts.Set(r.Context(), key, req.AccountID); err != nil {
		h.logger.Error("set account mapping", slog.Any("error", err), slog.String("key", key))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Warn("invalidate accounts cache", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"key": key, "account_id": req.AccountID})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyEntry), errors.Is(err, ErrUnbalancedEntry):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Posting Rejected", err.Error())
	case errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrMissingConfiguration):
		httpx.Problem(w, http.StatusPreconditionFailed, "Missing Configuration", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
