package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the purchasing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}/lines", h.updateLines)
	r.Post("/orders/{id}/transition", h.transition)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/receipts", h.receive)
	r.Get("/orders/{id}/receipts", h.listReceipts)
	r.Get("/receipts/{id}", h.getReceipt)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/outstanding", h.listOutstanding)
	r.Get("/invoices/aging", h.aging)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/void", h.voidInvoice)
	r.Post("/invoices/{id}/payments", h.recordPayment)
	r.Get("/invoices/{id}/payments", h.listPayments)
}

type orderLineRequest struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	UnitID   *int64  `json:"unit_id"`
	Qty      float64 `json:"qty" validate:"required,gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"required,gt=0"`
}

type createOrderRequest struct {
	SupplierID   int64              `json:"supplier_id" validate:"required,gt=0"`
	IssueDate    string             `json:"issue_date"`
	DeliveryDate string             `json:"delivery_date"`
	Note         string             `json:"note"`
	CreatedBy    int64              `json:"created_by"`
	Lines        []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	issue, ok := parseDate(w, req.IssueDate)
	if !ok {
		return
	}
	delivery, ok := parseDate(w, req.DeliveryDate)
	if !ok {
		return
	}
	input := CreateOrderInput{
		SupplierID:   req.SupplierID,
		IssueDate:    issue,
		DeliveryDate: delivery,
		Note:         req.Note,
		CreatedBy:    req.CreatedBy,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, OrderLineInput{ItemID: line.ItemID, UnitID: line.UnitID, Qty: line.Qty, UnitCost: line.UnitCost})
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.logger.Error("create order", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := OrderStatus(r.URL.Query().Get("status"))
	orders, err := h.service.ListOrders(r.Context(), status, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type updateLinesRequest struct {
	ActorID int64              `json:"actor_id"`
	Lines   []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req updateLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inputs := make([]OrderLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		inputs = append(inputs, OrderLineInput{ItemID: line.ItemID, UnitID: line.UnitID, Qty: line.Qty, UnitCost: line.UnitCost})
	}
	order, err := h.service.UpdateLines(r.Context(), id, inputs, req.ActorID)
	if err != nil {
		h.logger.Error("update order lines", slog.Any("error", err), slog.Int64("order_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req struct {
		Status  string `json:"status" validate:"required"`
		ActorID int64  `json:"actor_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.TransitionState(r.Context(), id, OrderStatus(req.Status), req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req struct {
		ActorID int64 `json:"actor_id"`
	}
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.Cancel(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": OrderStatusCancelled})
}

type receiveLineRequest struct {
	ItemID int64   `json:"item_id" validate:"required,gt=0"`
	Qty    float64 `json:"qty"`
}

type receiveRequest struct {
	Kind           string               `json:"kind"`
	ReceivedBy     int64                `json:"received_by"`
	Note           string               `json:"note"`
	IdempotencyKey string               `json:"idempotency_key"`
	Lines          []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiveInput{
		OrderID:        id,
		Kind:           ReceiptKind(req.Kind),
		ReceivedBy:     req.ReceivedBy,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, ReceiveLineInput{ItemID: line.ItemID, Qty: line.Qty})
	}
	receipt, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.logger.Error("receive", slog.Any("error", err), slog.Int64("order_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	receipts, err := h.service.ListReceipts(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

type createInvoiceRequest struct {
	ReceiptID      *int64 `json:"receipt_id"`
	OrderID        *int64 `json:"order_id"`
	IssueDate      string `json:"issue_date"`
	DueDate        string `json:"due_date"`
	CreatedBy      int64  `json:"created_by"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	issue, ok := parseDate(w, req.IssueDate)
	if !ok {
		return
	}
	due, ok := parseDate(w, req.DueDate)
	if !ok {
		return
	}
	invoice, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		ReceiptID:      req.ReceiptID,
		OrderID:        req.OrderID,
		IssueDate:      issue,
		DueDate:        due,
		CreatedBy:      req.CreatedBy,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req struct {
		ActorID int64 `json:"actor_id"`
	}
	_ = httpx.DecodeJSON(r, &req)
	invoice, err := h.service.VoidInvoice(r.Context(), id, req.ActorID)
	if err != nil {
		h.logger.Error("void invoice", slog.Any("error", err), slog.Int64("invoice_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listOutstanding(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListOutstanding(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.CalculateAPAging(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

type paymentRequest struct {
	BankAccountID  int64   `json:"bank_account_id" validate:"required,gt=0"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Method         string  `json:"method"`
	Reference      string  `json:"reference"`
	ActorID        int64   `json:"actor_id"`
	IdempotencyKey string  `json:"idempotency_key"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), PaymentInput{
		InvoiceID:      id,
		BankAccountID:  req.BankAccountID,
		Amount:         req.Amount,
		Method:         req.Method,
		Reference:      req.Reference,
		ActorID:        req.ActorID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.logger.Error("record payment", slog.Any("error", err), slog.Int64("invoice_id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var overReceipt *OverReceiptError
	var overPayment *OverPaymentError
	switch {
	case errors.As(err, &overReceipt):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":            "Over Receipt",
			"status":           http.StatusUnprocessableEntity,
			"detail":           overReceipt.Error(),
			"item_id":          overReceipt.ItemID,
			"ordered_qty":      overReceipt.OrderedQty,
			"already_received": overReceipt.AlreadyReceived,
			"attempted_qty":    overReceipt.AttemptedQty,
		})
	case errors.As(err, &overPayment):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":       "Over Payment",
			"status":      http.StatusUnprocessableEntity,
			"detail":      overPayment.Error(),
			"invoice_id":  overPayment.InvoiceID,
			"outstanding": overPayment.Outstanding,
			"attempted":   overPayment.Attempted,
		})
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ledger.ErrMissingConfiguration):
		httpx.Problem(w, http.StatusPreconditionFailed, "Missing Configuration", err.Error())
	case errors.Is(err, ledger.ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ledger.ErrUnbalancedEntry), errors.Is(err, ledger.ErrEmptyEntry):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Posting Rejected", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func parseDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dates must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}
