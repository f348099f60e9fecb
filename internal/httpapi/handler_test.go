package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"qms/walkin-service/internal/models"
	"qms/walkin-service/internal/queue"
	"qms/walkin-service/internal/reporting"
	"qms/walkin-service/internal/store"
	"qms/walkin-service/internal/store/memory"
)

type fakeStore struct {
	queueFn   func(ctx context.Context) ([]models.QueueEntry, error)
	historyFn func(ctx context.Context) ([]models.HistoryRecord, error)
	submitFn  func(ctx context.Context, action store.Action) (store.ActionResult, error)

	mu      sync.Mutex
	actions []store.Action
}

func (f *fakeStore) FetchQueue(ctx context.Context) ([]models.QueueEntry, error) {
	if f.queueFn == nil {
		return []models.QueueEntry{
			{Row: "1", Name: "Alice", Cellphone: "+27821234567", Barber: "Sam", TimeIn: "09:40"},
			{Row: "2", Name: "Bob", Cellphone: "+27829876543", Barber: "Lee", TimeIn: "09:00"},
			{Row: "3", Name: "Cara", Barber: "Sam", TimeIn: "08:00", TimeOut: "08:30"},
		}, nil
	}
	return f.queueFn(ctx)
}

func (f *fakeStore) FetchPrices(ctx context.Context) ([]models.PriceListItem, error) {
	return []models.PriceListItem{{CutType: "Fade", Price: 50}, {CutType: "Beard", Price: 75}}, nil
}

func (f *fakeStore) FetchBarbers(ctx context.Context) ([]models.Barber, error) {
	return []models.Barber{{Name: "Sam"}, {Name: "Lee"}}, nil
}

func (f *fakeStore) FetchHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	if f.historyFn == nil {
		return nil, nil
	}
	return f.historyFn(ctx)
}

func (f *fakeStore) Submit(ctx context.Context, action store.Action) (store.ActionResult, error) {
	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.mu.Unlock()
	if f.submitFn == nil {
		return store.ActionResult{Status: "ok"}, nil
	}
	return f.submitFn(ctx, action)
}

func (f *fakeStore) submitted() []store.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Action(nil), f.actions...)
}

func newTestHandler(t *testing.T, st *fakeStore) *Handler {
	t.Helper()
	journal := memory.NewJournal()
	journaled := store.NewJournaledStore(st, journal)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	queueController := queue.NewController(journaled, queue.Options{
		SettleDelay: time.Hour,
		ToastTTL:    time.Minute,
		Location:    time.UTC,
		Now:         func() time.Time { return now },
	})
	if err := queueController.Load(context.Background()); err != nil {
		t.Fatalf("load queue: %v", err)
	}
	queueController.Wait()

	reportController := reporting.NewController(journaled)
	if err := reportController.Load(context.Background()); err != nil {
		t.Fatalf("load report: %v", err)
	}
	return NewHandler(queueController, reportController, journal, Options{Location: time.UTC})
}

func doJSON(h *Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	resp := doJSON(h, http.MethodGet, "/healthz", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/healthz", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestQueueSnapshot(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	resp := doJSON(h, http.MethodGet, "/api/queue", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var view queue.QueueView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Phase != queue.PhaseReady || len(view.Customers) != 2 {
		t.Fatalf("unexpected snapshot: %+v", view)
	}
	if view.Customers[1].Wait.Bucket != queue.BucketLate || view.Customers[1].Wait.Text != "1h 0m" {
		t.Fatalf("unexpected wait for Bob: %+v", view.Customers[1].Wait)
	}
	if view.AverageService != "30m" {
		t.Fatalf("expected average 30m, got %q", view.AverageService)
	}
}

func TestJoinQueueSuccess(t *testing.T) {
	st := &fakeStore{}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodPost, "/api/queue", map[string]string{
		"request_id":       "11111111-1111-1111-1111-111111111111",
		"name":             "Zed",
		"cellphone_number": "+27820000000",
		"barber":           "Lee",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	actions := st.submitted()
	if len(actions) != 1 || actions[0].Kind != store.ActionAppend || actions[0].RequestID != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("unexpected actions: %+v", actions)
	}

	var view queue.QueueView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(view.Customers) != 3 || !view.Customers[2].Placeholder {
		t.Fatalf("expected placeholder entry, got %+v", view.Customers)
	}
}

func TestJoinQueueReplaysDuplicateRequest(t *testing.T) {
	st := &fakeStore{}
	h := newTestHandler(t, st)

	payload := map[string]string{
		"request_id":       "11111111-1111-1111-1111-111111111111",
		"name":             "Zed",
		"cellphone_number": "+27820000000",
		"barber":           "Lee",
	}
	for i := 0; i < 2; i++ {
		resp := doJSON(h, http.MethodPost, "/api/queue", payload)
		if resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected status 200, got %d", i, resp.Code)
		}
	}
	if got := len(st.submitted()); got != 1 {
		t.Fatalf("expected one write to the sheet, got %d", got)
	}
}

func TestJoinQueueInvalidPhone(t *testing.T) {
	st := &fakeStore{}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodPost, "/api/queue", map[string]string{
		"name":             "Zed",
		"cellphone_number": "0820000000",
		"barber":           "Lee",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	payload := decodeError(t, resp)
	if payload.Error.Code != "invalid_request" || payload.Error.Message != "Invalid Phone! Use +27 followed by 9 digits." {
		t.Fatalf("unexpected error: %+v", payload)
	}
	if len(st.submitted()) != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestJoinQueueRejectsBadPayloads(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	resp := doJSON(h, http.MethodPost, "/api/queue", map[string]string{"name": "Zed", "nickname": "x"})
	if resp.Code != http.StatusBadRequest || decodeError(t, resp).Error.Code != "invalid_json" {
		t.Fatalf("expected invalid_json for unknown field, got %d", resp.Code)
	}

	resp = doJSON(h, http.MethodPost, "/api/queue", map[string]string{
		"request_id":       "not-a-uuid",
		"name":             "Zed",
		"cellphone_number": "+27820000000",
		"barber":           "Lee",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestJoinQueueBackendRejected(t *testing.T) {
	st := &fakeStore{
		submitFn: func(ctx context.Context, action store.Action) (store.ActionResult, error) {
			return store.ActionResult{}, &store.BackendError{Status: "error", Message: "Sheet locked"}
		},
	}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodPost, "/api/queue", map[string]string{
		"name":             "Zed",
		"cellphone_number": "+27820000000",
		"barber":           "Lee",
	})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", resp.Code)
	}
	if payload := decodeError(t, resp); payload.Error.Message != "Sheet locked" {
		t.Fatalf("unexpected error: %+v", payload)
	}

	resp = doJSON(h, http.MethodGet, "/api/queue", nil)
	var view queue.QueueView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Phase != queue.PhaseReady {
		t.Fatalf("expected ready after failed write, got %s", view.Phase)
	}
}

func TestCheckoutFlow(t *testing.T) {
	st := &fakeStore{}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodPost, "/api/checkout", map[string]string{"row": "2"})
	if resp.Code != http.StatusOK {
		t.Fatalf("open checkout: expected status 200, got %d", resp.Code)
	}
	for _, cut := range []string{"Fade", "Beard"} {
		resp = doJSON(h, http.MethodPost, "/api/checkout/products", map[string]string{"cut_type": cut})
		if resp.Code != http.StatusOK {
			t.Fatalf("toggle %s: expected status 200, got %d", cut, resp.Code)
		}
	}
	resp = doJSON(h, http.MethodPost, "/api/checkout/cash", map[string]float64{"amount": 200})
	var checkout queue.CheckoutView
	if err := json.NewDecoder(resp.Body).Decode(&checkout); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if checkout.Total != 125 || checkout.ChangeDue != 75 {
		t.Fatalf("unexpected checkout totals: %+v", checkout)
	}

	resp = doJSON(h, http.MethodPost, "/api/checkout/payment", map[string]string{"method": "cash"})
	if resp.Code != http.StatusOK {
		t.Fatalf("choose payment: expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/checkout/confirm", map[string]string{"method": "cash"})
	if resp.Code != http.StatusOK {
		t.Fatalf("confirm: expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	actions := st.submitted()
	if len(actions) != 1 || actions[0].Kind != store.ActionUpdate || actions[0].Row != "2" || actions[0].TotalAmount != 125 || actions[0].PaymentType != models.PaymentCash {
		t.Fatalf("unexpected actions: %+v", actions)
	}
}

func TestCheckoutErrors(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	resp := doJSON(h, http.MethodPost, "/api/checkout", map[string]string{"row": "3"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for served customer, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/checkout", map[string]string{"row": " "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for blank row, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/checkout/confirm", map[string]string{"method": "cash"})
	if resp.Code != http.StatusConflict || decodeError(t, resp).Error.Code != "no_checkout" {
		t.Fatalf("expected no_checkout conflict, got %d", resp.Code)
	}

	doJSON(h, http.MethodPost, "/api/checkout", map[string]string{"row": "1"})
	resp = doJSON(h, http.MethodPost, "/api/checkout/payment", map[string]string{"method": "cheque"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad method, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodDelete, "/api/checkout", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel checkout: expected status 200, got %d", resp.Code)
	}
}

func TestSkipFlow(t *testing.T) {
	st := &fakeStore{}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodPost, "/api/skip/confirm", map[string]string{})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409 without a target, got %d", resp.Code)
	}

	resp = doJSON(h, http.MethodPost, "/api/skip", map[string]string{"row": "1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("select skip: expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/skip/confirm", map[string]string{"request_id": "22222222-2222-2222-2222-222222222222"})
	if resp.Code != http.StatusOK {
		t.Fatalf("execute skip: expected status 200, got %d", resp.Code)
	}

	var view queue.QueueView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(view.Customers) != 1 || view.Customers[0].Name != "Bob" || view.Toaster.Message != "Customer removed" {
		t.Fatalf("unexpected view after skip: %+v", view)
	}
}

func TestPaymentRejectsReusedRequestID(t *testing.T) {
	st := &fakeStore{}
	h := newTestHandler(t, st)
	requestID := "33333333-3333-3333-3333-333333333333"

	resp := doJSON(h, http.MethodPost, "/api/skip", map[string]string{"row": "1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("select skip: expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/skip/confirm", map[string]string{"request_id": requestID})
	if resp.Code != http.StatusOK {
		t.Fatalf("execute skip: expected status 200, got %d", resp.Code)
	}

	resp = doJSON(h, http.MethodPost, "/api/checkout", map[string]string{"row": "2"})
	if resp.Code != http.StatusOK {
		t.Fatalf("open checkout: expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/checkout/products", map[string]string{"cut_type": "Fade"})
	if resp.Code != http.StatusOK {
		t.Fatalf("toggle product: expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/checkout/confirm", map[string]string{"method": "card", "request_id": requestID})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", resp.Code, resp.Body.String())
	}
	if payload := decodeError(t, resp); payload.Error.Code != "request_id_reused" {
		t.Fatalf("unexpected error: %+v", payload)
	}

	actions := st.submitted()
	if len(actions) != 1 || actions[0].Kind != store.ActionSkip {
		t.Fatalf("expected only the skip to reach the sheet, got %+v", actions)
	}
	view := h.queue.Snapshot()
	if view.Modal != queue.ModalCheckout || view.Toaster.Message != "This request id was already used." {
		t.Fatalf("expected checkout to stay open with a toast, got modal=%v toast=%q", view.Modal, view.Toaster.Message)
	}
	for _, customer := range view.Customers {
		if customer.Row == "2" && customer.TimeOut != "" {
			t.Fatalf("customer should not be marked served: %+v", customer)
		}
	}
}

func TestIntakeLookup(t *testing.T) {
	st := &fakeStore{
		historyFn: func(ctx context.Context) ([]models.HistoryRecord, error) {
			return []models.HistoryRecord{{Name: "Eve", Cellphone: "27831112222", Barber: "Sam"}}, nil
		},
	}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodPost, "/api/intake", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("open intake: expected status 200, got %d", resp.Code)
	}
	resp = doJSON(h, http.MethodPost, "/api/intake/lookup", map[string]string{"cellphone_number": "+27831112222"})
	var form queue.IntakeForm
	if err := json.NewDecoder(resp.Body).Decode(&form); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !form.Existing || form.Name != "Eve" || form.Barber != "Sam" {
		t.Fatalf("unexpected lookup: %+v", form)
	}
}

func TestReportFilter(t *testing.T) {
	st := &fakeStore{
		historyFn: func(ctx context.Context) ([]models.HistoryRecord, error) {
			return []models.HistoryRecord{
				{Name: "John Smith", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Amount: 100},
				{Name: "John Doe", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Amount: 80},
				{Name: "Johnny", Date: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), Amount: 50},
				{Name: "Mary", Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Amount: 40},
			}, nil
		},
	}
	h := newTestHandler(t, st)

	resp := doJSON(h, http.MethodGet, "/api/report?q=john&start=2024-01-01&end=2024-01-31&sort=asc", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var view reporting.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Count != 2 || view.Total != 150 || view.Records[0].Name != "John Smith" {
		t.Fatalf("unexpected report: %+v", view)
	}

	resp = doJSON(h, http.MethodPost, "/api/report/sort?q=john&start=2024-01-01&end=2024-01-31", nil)
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Direction != reporting.Ascending || view.Count != 2 || view.Records[0].Name != "John Smith" {
		t.Fatalf("unexpected sorted report: %+v", view)
	}
}

func TestReportQueryDoesNotChangeSharedView(t *testing.T) {
	st := &fakeStore{
		historyFn: func(ctx context.Context) ([]models.HistoryRecord, error) {
			return []models.HistoryRecord{
				{Name: "John Smith", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Amount: 100},
				{Name: "Mary", Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Amount: 40},
			}, nil
		},
	}
	h := newTestHandler(t, st)

	for _, path := range []string{"/api/report?q=mary&sort=asc", "/api/report/export?q=john&sort=asc"} {
		resp := doJSON(h, http.MethodGet, path, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, resp.Code)
		}
	}

	resp := doJSON(h, http.MethodGet, "/api/report", nil)
	var view reporting.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Direction != reporting.Descending || view.Count != 2 || view.Records[0].Name != "John Smith" {
		t.Fatalf("expected the unfiltered newest-first view, got %+v", view)
	}
}

func TestReportInvalidQuery(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	for _, path := range []string{"/api/report?start=01/02/2024", "/api/report?end=tomorrow", "/api/report?sort=up"} {
		resp := doJSON(h, http.MethodGet, path, nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", path, resp.Code)
		}
	}
}

func TestReportExport(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	resp := doJSON(h, http.MethodGet, "/api/report/export", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), "walkin-report.xlsx") {
		t.Fatalf("missing attachment filename")
	}
	if resp.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}

func TestJournalListing(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	for _, id := range []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222"} {
		resp := doJSON(h, http.MethodPost, "/api/queue", map[string]string{
			"request_id":       id,
			"name":             "Zed",
			"cellphone_number": "+27820000000",
			"barber":           "Lee",
		})
		if resp.Code != http.StatusOK {
			t.Fatalf("join: expected status 200, got %d", resp.Code)
		}
	}

	resp := doJSON(h, http.MethodGet, "/api/journal?limit=1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var entries []store.JournalEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != store.JournalSucceeded {
		t.Fatalf("unexpected journal entries: %+v", entries)
	}

	resp = doJSON(h, http.MethodGet, "/api/journal?limit=0", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRateLimiterBlocksBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
		req.RemoteAddr = "10.0.0.1:4567"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.RemoteAddr = "10.0.0.2:4567"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", resp.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", got)
	}
}
