// Package queue owns the walk-in queue page: the lists read from the sheet,
// the figures derived from them, and the intake, checkout and skip flows.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"qms/walkin-service/internal/models"
	"qms/walkin-service/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLoadFallback = 7 * time.Second
	defaultToastTTL     = 5 * time.Second
)

type Options struct {
	// LoadFallback bounds how long Load waits for the queue read before the
	// page is shown anyway.
	LoadFallback time.Duration
	// SettleDelay is how long to wait after a successful write before
	// reloading. Zero reloads before the write call returns.
	SettleDelay time.Duration
	ToastTTL    time.Duration
	PhoneRule   PhoneRule
	Location    *time.Location
	Now         func() time.Time
}

type Controller struct {
	store store.SheetStore
	opts  Options

	mu         sync.Mutex
	cycle      uint64
	inflight   *errgroup.Group
	view       ViewState
	entries    []models.QueueEntry
	prices     []models.PriceListItem
	barbers    []models.Barber
	phoneIndex map[string]models.HistoryRecord
	form       IntakeForm
	checkout   *CheckoutSession
	skipTarget *models.QueueEntry
}

func NewController(st store.SheetStore, options Options) *Controller {
	if options.LoadFallback <= 0 {
		options.LoadFallback = defaultLoadFallback
	}
	if options.ToastTTL <= 0 {
		options.ToastTTL = defaultToastTTL
	}
	if options.PhoneRule.pattern == nil {
		options.PhoneRule = NewPhoneRule(options.PhoneRule.CountryCode, options.PhoneRule.Digits)
	}
	if options.Location == nil {
		options.Location = time.Local
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	c := &Controller{
		store:      st,
		opts:       options,
		view:       NewViewState(),
		phoneIndex: map[string]models.HistoryRecord{},
	}
	c.form = c.blankForm()
	return c
}

func (c *Controller) now() time.Time {
	return c.opts.Now().In(c.opts.Location)
}

// Load starts a load cycle: the queue, prices, barbers and history are read
// concurrently and each result only lands if its cycle is still current. Load
// returns once the queue read finishes or the fallback timer fires; the other
// reads keep going in the background (see Wait).
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.cycle++
	cycle := c.cycle
	c.view = c.view.BeginLoad()
	group := new(errgroup.Group)
	c.inflight = group
	c.mu.Unlock()

	readCtx := context.WithoutCancel(ctx)
	queueDone := make(chan error, 1)

	group.Go(func() error {
		entries, err := c.store.FetchQueue(readCtx)
		c.applyQueue(cycle, entries, err)
		queueDone <- err
		return nil
	})
	group.Go(func() error {
		prices, err := c.store.FetchPrices(readCtx)
		c.applyReference(cycle, "prices", err, func() { c.prices = prices })
		return nil
	})
	group.Go(func() error {
		barbers, err := c.store.FetchBarbers(readCtx)
		c.applyReference(cycle, "barbers", err, func() { c.barbers = barbers })
		return nil
	})
	group.Go(func() error {
		history, err := c.store.FetchHistory(readCtx)
		c.applyReference(cycle, "history", err, func() { c.phoneIndex = DedupeByPhone(history) })
		return nil
	})

	timer := time.NewTimer(c.opts.LoadFallback)
	defer timer.Stop()

	select {
	case err := <-queueDone:
		return err
	case <-timer.C:
		c.mu.Lock()
		if c.cycle == cycle {
			c.view = c.view.FinishLoad(true)
		}
		c.mu.Unlock()
		log.Printf("queue load fallback cycle=%d after=%s", cycle, c.opts.LoadFallback)
		return ErrLoadStalled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every read of the latest load cycle has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	group := c.inflight
	c.mu.Unlock()
	if group != nil {
		_ = group.Wait()
	}
}

func (c *Controller) applyQueue(cycle uint64, entries []models.QueueEntry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle != c.cycle {
		log.Printf("queue load discarded cycle=%d current=%d", cycle, c.cycle)
		return
	}
	if err != nil {
		log.Printf("queue load error cycle=%d: %v", cycle, err)
		c.view = c.view.FinishLoad(false)
		c.view = c.view.ShowToast("Failed to load queue", false, c.now(), c.opts.ToastTTL)
		return
	}
	c.entries = entries
	c.view = c.view.FinishLoad(true)
	c.dropVanishedSelections()
}

func (c *Controller) applyReference(cycle uint64, name string, err error, apply func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle != c.cycle {
		return
	}
	if err != nil {
		log.Printf("%s load error cycle=%d: %v", name, cycle, err)
		return
	}
	apply()
}

// dropVanishedSelections forgets a checkout or skip selection whose customer
// is no longer waiting, for example after another terminal served them.
func (c *Controller) dropVanishedSelections() {
	if c.view.Phase == PhaseSubmitting {
		return
	}
	if c.checkout != nil {
		if _, ok := findWaiting(c.entries, c.checkout.Customer.Row); !ok {
			c.checkout = nil
			if c.view.Modal == ModalCheckout || c.view.Modal == ModalCash || c.view.Modal == ModalDigital {
				c.view = c.view.CloseModal()
			}
		}
	}
	if c.skipTarget != nil {
		if _, ok := findWaiting(c.entries, c.skipTarget.Row); !ok {
			c.skipTarget = nil
			if c.view.Modal == ModalSkip {
				c.view = c.view.CloseModal()
			}
		}
	}
}

type CustomerView struct {
	models.QueueEntry
	Wait WaitInfo `json:"wait"`
}

type CheckoutView struct {
	Customer     models.QueueEntry      `json:"customer"`
	Products     []models.PriceListItem `json:"products"`
	Total        float64                `json:"total"`
	CashReceived float64                `json:"cash_received"`
	ChangeDue    float64                `json:"change_due"`
	Method       string                 `json:"method,omitempty"`
}

type QueueView struct {
	ViewState
	LoadCycle      uint64                 `json:"load_cycle"`
	Customers      []CustomerView         `json:"customers"`
	AverageService string                 `json:"average_service"`
	Prices         []models.PriceListItem `json:"prices"`
	Barbers        []models.Barber        `json:"barbers"`
	Form           IntakeForm             `json:"form"`
	Checkout       *CheckoutView          `json:"checkout,omitempty"`
	Skip           *models.QueueEntry     `json:"skip,omitempty"`
}

func (c *Controller) Snapshot() QueueView {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	waiting := Unserved(c.entries)
	customers := make([]CustomerView, 0, len(waiting))
	for _, entry := range waiting {
		customers = append(customers, CustomerView{QueueEntry: entry, Wait: WaitTime(entry.TimeIn, now)})
	}
	average, _ := AverageServiceMinutes(c.entries)

	view := QueueView{
		ViewState:      c.view.At(now),
		LoadCycle:      c.cycle,
		Customers:      customers,
		AverageService: FormatAverage(average),
		Prices:         append([]models.PriceListItem{}, c.prices...),
		Barbers:        append([]models.Barber{}, c.barbers...),
		Form:           c.form,
	}
	if c.checkout != nil {
		checkout := c.checkoutView()
		view.Checkout = &checkout
	}
	if c.skipTarget != nil {
		target := *c.skipTarget
		view.Skip = &target
	}
	return view
}

func (c *Controller) blankForm() IntakeForm {
	return IntakeForm{Cellphone: c.opts.PhoneRule.Prefix()}
}

func (c *Controller) OpenJoin() IntakeForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = c.blankForm()
	c.view = c.view.OpenModal(ModalJoin)
	return c.form
}

// PhoneInput runs the returning-customer lookup for a typed number.
func (c *Controller) PhoneInput(phone string) IntakeForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	form := c.form
	form.Cellphone = phone
	c.form = lookupPhone(form, c.phoneIndex, c.opts.PhoneRule)
	return c.form
}

// SubmitJoin appends a customer to the queue. On success a placeholder entry
// is shown until the next load replaces the list.
func (c *Controller) SubmitJoin(ctx context.Context, form IntakeForm, requestID string) error {
	form = form.normalized()

	c.mu.Lock()
	if err := form.validate(c.opts.PhoneRule); err != nil {
		c.view = c.view.ShowToast(err.Error(), false, c.now(), c.opts.ToastTTL)
		c.mu.Unlock()
		return err
	}
	next, err := c.view.BeginSubmit()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.view = next
	c.form = form
	c.mu.Unlock()

	_, err = c.store.Submit(context.WithoutCancel(ctx), store.Action{
		Kind:            store.ActionAppend,
		RequestID:       ensureRequestID(requestID),
		CellphoneNumber: form.Cellphone,
		Name:            form.Name,
		Barber:          form.Barber,
	})

	c.mu.Lock()
	now := c.now()
	c.view = c.view.FinishSubmit()
	if err != nil {
		log.Printf("append error phone=%s: %v", form.Cellphone, err)
		c.view = c.view.ShowToast(failureMessage(err, "Connection failed."), false, now, c.opts.ToastTTL)
		c.mu.Unlock()
		return err
	}
	c.entries = append(c.entries, models.QueueEntry{
		Row:         fmt.Sprintf("pending-%d", now.UnixMilli()),
		Name:        form.Name,
		Cellphone:   form.Cellphone,
		Barber:      form.Barber,
		TimeIn:      now.Format("15:04"),
		Placeholder: true,
	})
	c.form = c.blankForm()
	c.view = c.view.CloseModal().ShowToast("Success! Added to the queue.", true, now, c.opts.ToastTTL)
	c.mu.Unlock()

	c.scheduleReload()
	return nil
}

// OpenCheckout starts a checkout for a waiting customer, replacing any
// checkout that was open.
func (c *Controller) OpenCheckout(row string) (CheckoutView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.Phase == PhaseSubmitting {
		return CheckoutView{}, ErrBusy
	}
	entry, err := c.waitingEntry(row)
	if err != nil {
		return CheckoutView{}, err
	}
	c.checkout = NewCheckoutSession(entry)
	c.view = c.view.OpenModal(ModalCheckout)
	return c.checkoutView(), nil
}

func (c *Controller) ToggleProduct(cutType string) (CheckoutView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checkout == nil {
		return CheckoutView{}, ErrNoCheckout
	}
	for _, item := range c.prices {
		if item.CutType == cutType {
			c.checkout.Toggle(item)
			return c.checkoutView(), nil
		}
	}
	return CheckoutView{}, ErrProductNotFound
}

func (c *Controller) SetCashReceived(amount float64) (CheckoutView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checkout == nil {
		return CheckoutView{}, ErrNoCheckout
	}
	if amount < 0 {
		amount = 0
	}
	c.checkout.CashReceived = amount
	return c.checkoutView(), nil
}

// ChoosePayment opens the cash or card confirmation for the current checkout.
func (c *Controller) ChoosePayment(method string) (CheckoutView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checkout == nil {
		return CheckoutView{}, ErrNoCheckout
	}
	normalized, ok := normalizePaymentMethod(method)
	if !ok {
		return CheckoutView{}, ErrInvalidPayment
	}
	if len(c.checkout.Products) == 0 {
		return CheckoutView{}, ErrNoProducts
	}
	c.checkout.Method = normalized
	if normalized == models.PaymentCash {
		c.view = c.view.OpenModal(ModalCash)
	} else {
		c.view = c.view.OpenModal(ModalDigital)
	}
	return c.checkoutView(), nil
}

// ConfirmPayment records the checkout on the sheet. On failure the checkout
// stays open for another attempt.
func (c *Controller) ConfirmPayment(ctx context.Context, method, requestID string) error {
	c.mu.Lock()
	if c.checkout == nil {
		c.mu.Unlock()
		return ErrNoCheckout
	}
	if method == "" {
		method = c.checkout.Method
	}
	normalized, ok := normalizePaymentMethod(method)
	if !ok {
		c.mu.Unlock()
		return ErrInvalidPayment
	}
	if len(c.checkout.Products) == 0 {
		c.view = c.view.ShowToast("Select at least one service.", false, c.now(), c.opts.ToastTTL)
		c.mu.Unlock()
		return ErrNoProducts
	}
	next, err := c.view.BeginSubmit()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.view = next
	session := c.checkout.clone()
	session.Method = normalized
	c.mu.Unlock()

	_, err = c.store.Submit(context.WithoutCancel(ctx), store.Action{
		Kind:             store.ActionUpdate,
		RequestID:        ensureRequestID(requestID),
		Row:              session.Customer.Row,
		TotalAmount:      session.Total(),
		PaymentType:      normalized,
		SelectedProducts: session.ProductNames(),
	})

	c.mu.Lock()
	now := c.now()
	c.view = c.view.FinishSubmit()
	if err != nil {
		log.Printf("checkout error row=%s method=%s: %v", session.Customer.Row, normalized, err)
		c.view = c.view.OpenModal(ModalCheckout).ShowToast(failureMessage(err, "Payment failed"), false, now, c.opts.ToastTTL)
		c.mu.Unlock()
		return err
	}
	for i := range c.entries {
		if c.entries[i].Row == session.Customer.Row {
			c.entries[i].TimeOut = now.Format("15:04")
		}
	}
	c.checkout = nil
	c.view = c.view.CloseModal().ShowToast("Payment Recorded: "+normalized, true, now, c.opts.ToastTTL)
	c.mu.Unlock()

	c.scheduleReload()
	return nil
}

func (c *Controller) CancelCheckout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.Phase == PhaseSubmitting {
		return
	}
	c.checkout = nil
	c.view = c.view.CloseModal()
}

// ConfirmSkip selects a waiting customer for removal and asks for confirmation.
func (c *Controller) ConfirmSkip(row string) (models.QueueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view.Phase == PhaseSubmitting {
		return models.QueueEntry{}, ErrBusy
	}
	entry, err := c.waitingEntry(row)
	if err != nil {
		return models.QueueEntry{}, err
	}
	c.skipTarget = &entry
	c.view = c.view.OpenModal(ModalSkip)
	return entry, nil
}

func (c *Controller) ExecuteSkip(ctx context.Context, requestID string) error {
	c.mu.Lock()
	if c.skipTarget == nil {
		c.mu.Unlock()
		return ErrNoSkipTarget
	}
	next, err := c.view.BeginSubmit()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.view = next
	target := *c.skipTarget
	c.mu.Unlock()

	_, err = c.store.Submit(context.WithoutCancel(ctx), store.Action{
		Kind:      store.ActionSkip,
		RequestID: ensureRequestID(requestID),
		Row:       target.Row,
	})

	c.mu.Lock()
	now := c.now()
	c.view = c.view.FinishSubmit()
	if err != nil {
		log.Printf("skip error row=%s: %v", target.Row, err)
		c.view = c.view.ShowToast(failureMessage(err, "Error skipping"), false, now, c.opts.ToastTTL)
		c.mu.Unlock()
		return err
	}
	kept := c.entries[:0:0]
	for _, entry := range c.entries {
		if entry.Row != target.Row {
			kept = append(kept, entry)
		}
	}
	c.entries = kept
	c.skipTarget = nil
	c.view = c.view.CloseModal().ShowToast("Customer removed", true, now, c.opts.ToastTTL)
	c.mu.Unlock()

	c.scheduleReload()
	return nil
}

func (c *Controller) CancelSkip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.Phase == PhaseSubmitting {
		return
	}
	c.skipTarget = nil
	c.view = c.view.CloseModal()
}

// CloseModal backs out of whichever dialog is open.
func (c *Controller) CloseModal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.Phase == PhaseSubmitting {
		return
	}
	switch c.view.Modal {
	case ModalJoin:
		c.form = c.blankForm()
		c.view = c.view.CloseModal()
	case ModalCash, ModalDigital:
		c.view = c.view.OpenModal(ModalCheckout)
	case ModalCheckout:
		c.checkout = nil
		c.view = c.view.CloseModal()
	case ModalSkip:
		c.skipTarget = nil
		c.view = c.view.CloseModal()
	}
}

func (c *Controller) waitingEntry(row string) (models.QueueEntry, error) {
	entry, ok := findWaiting(c.entries, row)
	if !ok {
		return models.QueueEntry{}, ErrCustomerNotFound
	}
	if entry.Placeholder {
		return models.QueueEntry{}, ErrPendingEntry
	}
	return entry, nil
}

func (c *Controller) checkoutView() CheckoutView {
	return CheckoutView{
		Customer:     c.checkout.Customer,
		Products:     append([]models.PriceListItem{}, c.checkout.Products...),
		Total:        c.checkout.Total(),
		CashReceived: c.checkout.CashReceived,
		ChangeDue:    c.checkout.ChangeDue(),
		Method:       c.checkout.Method,
	}
}

func (c *Controller) scheduleReload() {
	if c.opts.SettleDelay <= 0 {
		c.reload()
		return
	}
	time.AfterFunc(c.opts.SettleDelay, c.reload)
}

func (c *Controller) reload() {
	if err := c.Load(context.Background()); err != nil {
		log.Printf("queue reload error: %v", err)
	}
}

func findWaiting(entries []models.QueueEntry, row string) (models.QueueEntry, bool) {
	for _, entry := range entries {
		if entry.Row == row && entry.Waiting() {
			return entry, true
		}
	}
	return models.QueueEntry{}, false
}

func ensureRequestID(requestID string) string {
	if requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

func failureMessage(err error, fallback string) string {
	if msg, ok := store.BackendMessage(err); ok {
		return msg
	}
	var backendErr *store.BackendError
	if errors.As(err, &backendErr) {
		return "Try again."
	}
	if errors.Is(err, store.ErrActionInFlight) {
		return "This request is already being processed."
	}
	if errors.Is(err, store.ErrRequestIDReused) {
		return "This request id was already used."
	}
	return fallback
}
