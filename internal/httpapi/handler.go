package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"qms/walkin-service/internal/queue"
	"qms/walkin-service/internal/reporting"
	"qms/walkin-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	queue    *queue.Controller
	report   *reporting.Controller
	journal  store.ActionJournal
	location *time.Location
}

type joinRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Cellphone string `json:"cellphone_number"`
	Barber    string `json:"barber"`
}

type lookupRequest struct {
	Cellphone string `json:"cellphone_number"`
}

type rowRequest struct {
	Row string `json:"row"`
}

type productRequest struct {
	CutType string `json:"cut_type"`
}

type cashRequest struct {
	Amount float64 `json:"amount"`
}

type paymentRequest struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
}

type skipConfirmRequest struct {
	RequestID string `json:"request_id"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	// Location is used to read report date bounds. Defaults to time.Local.
	Location *time.Location
}

func NewHandler(queueController *queue.Controller, reportController *reporting.Controller, journal store.ActionJournal, options Options) *Handler {
	location := options.Location
	if location == nil {
		location = time.Local
	}
	return &Handler{
		queue:    queueController,
		report:   reportController,
		journal:  journal,
		location: location,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/refresh", h.handleRefresh)
	mux.HandleFunc("/api/intake", h.handleIntake)
	mux.HandleFunc("/api/intake/lookup", h.handleLookup)
	mux.HandleFunc("/api/modal/close", h.handleCloseModal)
	mux.HandleFunc("/api/checkout", h.handleCheckout)
	mux.HandleFunc("/api/checkout/products", h.handleToggleProduct)
	mux.HandleFunc("/api/checkout/cash", h.handleCash)
	mux.HandleFunc("/api/checkout/payment", h.handleChoosePayment)
	mux.HandleFunc("/api/checkout/confirm", h.handleConfirmPayment)
	mux.HandleFunc("/api/skip", h.handleSkip)
	mux.HandleFunc("/api/skip/confirm", h.handleExecuteSkip)
	mux.HandleFunc("/api/report", h.handleReport)
	mux.HandleFunc("/api/report/refresh", h.handleReportRefresh)
	mux.HandleFunc("/api/report/sort", h.handleReportSort)
	mux.HandleFunc("/api/report/export", h.handleReportExport)
	mux.HandleFunc("/api/journal", h.handleJournal)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.queue.Snapshot())
	case http.MethodPost:
		h.handleJoin(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if !validRequestID(w, req.RequestID) {
		return
	}

	form := queue.IntakeForm{Name: req.Name, Cellphone: req.Cellphone, Barber: req.Barber}
	if err := h.queue.SubmitJoin(r.Context(), form, req.RequestID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.queue.Load(r.Context()); err != nil && !errors.Is(err, queue.ErrLoadStalled) {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}

func (h *Handler) handleIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.queue.OpenJoin())
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req lookupRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.queue.PhoneInput(req.Cellphone))
}

func (h *Handler) handleCloseModal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.queue.CloseModal()
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req rowRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if !requireRow(w, req.Row) {
			return
		}
		view, err := h.queue.OpenCheckout(strings.TrimSpace(req.Row))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		h.queue.CancelCheckout()
		writeJSON(w, http.StatusOK, h.queue.Snapshot())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleToggleProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req productRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.CutType = strings.TrimSpace(req.CutType)
	if req.CutType == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "cut_type is required")
		return
	}
	h.respondCheckout(w, func() (queue.CheckoutView, error) { return h.queue.ToggleProduct(req.CutType) })
}

func (h *Handler) handleCash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cashRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Amount < 0 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "amount must not be negative")
		return
	}
	h.respondCheckout(w, func() (queue.CheckoutView, error) { return h.queue.SetCashReceived(req.Amount) })
}

func (h *Handler) handleChoosePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req paymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.respondCheckout(w, func() (queue.CheckoutView, error) { return h.queue.ChoosePayment(req.Method) })
}

func (h *Handler) respondCheckout(w http.ResponseWriter, fn func() (queue.CheckoutView, error)) {
	view, err := fn()
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req paymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if !validRequestID(w, req.RequestID) {
		return
	}
	h.respondWrite(r.Context(), w, req.RequestID, func(ctx context.Context) error {
		return h.queue.ConfirmPayment(ctx, req.Method, req.RequestID)
	})
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req rowRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if !requireRow(w, req.Row) {
			return
		}
		entry, err := h.queue.ConfirmSkip(strings.TrimSpace(req.Row))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		h.queue.CancelSkip()
		writeJSON(w, http.StatusOK, h.queue.Snapshot())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleExecuteSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req skipConfirmRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if !validRequestID(w, req.RequestID) {
		return
	}
	h.respondWrite(r.Context(), w, req.RequestID, func(ctx context.Context) error {
		return h.queue.ExecuteSkip(ctx, req.RequestID)
	})
}

func (h *Handler) respondWrite(ctx context.Context, w http.ResponseWriter, requestID string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}

func requireRow(w http.ResponseWriter, row string) bool {
	if strings.TrimSpace(row) == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "row is required")
		return false
	}
	return true
}

// validRequestID accepts an empty id; a new one is generated for the write.
func validRequestID(w http.ResponseWriter, requestID string) bool {
	if requestID == "" || isValidUUID(requestID) {
		return true
	}
	writeError(w, requestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
	return false
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var validation *queue.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, "invalid_request", validation.Message
	}
	var backendErr *store.BackendError
	if errors.As(err, &backendErr) {
		if msg, ok := store.BackendMessage(err); ok {
			return http.StatusBadGateway, "sheet_rejected", msg
		}
		return http.StatusBadGateway, "sheet_rejected", "Try again."
	}

	switch {
	case errors.Is(err, queue.ErrBusy):
		return http.StatusConflict, "busy", "another action is in progress"
	case errors.Is(err, queue.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found in the waiting queue"
	case errors.Is(err, queue.ErrPendingEntry):
		return http.StatusConflict, "pending_entry", "customer is not confirmed by the sheet yet"
	case errors.Is(err, queue.ErrNoCheckout):
		return http.StatusConflict, "no_checkout", "no checkout in progress"
	case errors.Is(err, queue.ErrNoProducts):
		return http.StatusBadRequest, "no_products", "select at least one service"
	case errors.Is(err, queue.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found", "service not found in the price list"
	case errors.Is(err, queue.ErrInvalidPayment):
		return http.StatusBadRequest, "invalid_payment", "payment method must be Cash or Card"
	case errors.Is(err, queue.ErrNoSkipTarget):
		return http.StatusConflict, "no_skip_target", "no customer selected to skip"
	case errors.Is(err, store.ErrActionInFlight):
		return http.StatusConflict, "action_in_flight", "this request is already being processed"
	case errors.Is(err, store.ErrRequestIDReused):
		return http.StatusUnprocessableEntity, "request_id_reused", "request id already used for a different action"
	case errors.Is(err, store.ErrTimeout):
		return http.StatusGatewayTimeout, "sheet_timeout", "Connection failed."
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrBadResponse):
		return http.StatusBadGateway, "sheet_unavailable", "Connection failed."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled", "request canceled"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
