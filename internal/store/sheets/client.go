// Package sheets talks to the spreadsheet web app that holds the queue, the
// price list, the barbers and the assisted history. Every sheet is read through
// the same endpoint with a sheet query parameter; every write is a JSON action
// posted to it.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"qms/walkin-service/internal/models"
	"qms/walkin-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	SheetQueue    = "Queue"
	SheetPrices   = "Prices"
	SheetBarbers  = "Barbers"
	SheetAssisted = "Assisted"

	defaultTimeout  = 8 * time.Second
	maxResponseSize = 8 << 20
)

type Options struct {
	Endpoint   string
	Timeout    time.Duration
	Location   *time.Location
	HTTPClient *http.Client
}

type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	timeout    time.Duration
	location   *time.Location
	tracer     trace.Tracer
	cacheToken func() string
}

func NewClient(options Options) (*Client, error) {
	raw := strings.TrimSpace(options.Endpoint)
	if raw == "" {
		return nil, errors.New("sheets endpoint is required")
	}
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse sheets endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("sheets endpoint must be http(s), got %q", endpoint.Scheme)
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	location := options.Location
	if location == nil {
		location = time.Local
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		timeout:    timeout,
		location:   location,
		tracer:     otel.Tracer("qms/walkin-service/sheets"),
		cacheToken: uuid.NewString,
	}, nil
}

type readEnvelope struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    []map[string]any `json:"data"`
}

type writeEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) FetchQueue(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := c.fetchSheet(ctx, SheetQueue)
	if err != nil {
		return nil, err
	}
	entries := make([]models.QueueEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, parseQueueEntry(row, c.location))
	}
	return entries, nil
}

func (c *Client) FetchPrices(ctx context.Context) ([]models.PriceListItem, error) {
	rows, err := c.fetchSheet(ctx, SheetPrices)
	if err != nil {
		return nil, err
	}
	items := make([]models.PriceListItem, 0, len(rows))
	for _, row := range rows {
		item, ok := parsePriceListItem(row)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) FetchBarbers(ctx context.Context) ([]models.Barber, error) {
	rows, err := c.fetchSheet(ctx, SheetBarbers)
	if err != nil {
		return nil, err
	}
	barbers := make([]models.Barber, 0, len(rows))
	for _, row := range rows {
		barber, ok := parseBarber(row)
		if !ok {
			continue
		}
		barbers = append(barbers, barber)
	}
	return barbers, nil
}

func (c *Client) FetchHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := c.fetchSheet(ctx, SheetAssisted)
	if err != nil {
		return nil, err
	}
	records := make([]models.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, parseHistoryRecord(row, c.location))
	}
	return records, nil
}

func (c *Client) Submit(ctx context.Context, action store.Action) (store.ActionResult, error) {
	ctx, span := c.tracer.Start(ctx, "sheets.submit", trace.WithAttributes(attribute.String("sheets.action", action.Kind)))
	defer span.End()

	payload, err := actionPayload(action)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return store.ActionResult{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return store.ActionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return store.ActionResult{}, err
	}
	// Apps Script web apps only accept simple requests.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	var envelope writeEnvelope
	if err := c.do(ctx, req, &envelope); err != nil {
		recordError(span, err)
		return store.ActionResult{}, err
	}
	if envelope.Status != "ok" {
		err := &store.BackendError{Status: envelope.Status, Message: envelope.Message}
		recordError(span, err)
		return store.ActionResult{}, err
	}
	return store.ActionResult{Status: envelope.Status, Message: envelope.Message}, nil
}

func (c *Client) fetchSheet(ctx context.Context, sheet string) ([]map[string]any, error) {
	ctx, span := c.tracer.Start(ctx, "sheets.fetch", trace.WithAttributes(attribute.String("sheets.sheet", sheet)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := *c.endpoint
	query := target.Query()
	query.Set("sheet", sheet)
	query.Set("cb", c.cacheToken())
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	var envelope readEnvelope
	if err := c.do(ctx, req, &envelope); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("fetch %s: %w", sheet, err)
	}
	if envelope.Status != "ok" {
		err := &store.BackendError{Status: envelope.Status, Message: envelope.Message}
		recordError(span, err)
		return nil, fmt.Errorf("fetch %s: %w", sheet, err)
	}
	span.SetAttributes(attribute.Int("sheets.rows", len(envelope.Data)))
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return fmt.Errorf("%w: http status %d", store.ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(target); err != nil {
		if ctx.Err() != nil {
			return classify(ctx, err)
		}
		return fmt.Errorf("%w: %v", store.ErrBadResponse, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func actionPayload(action store.Action) (map[string]any, error) {
	payload := map[string]any{"action": action.Kind}
	if action.RequestID != "" {
		payload["requestId"] = action.RequestID
	}
	switch action.Kind {
	case store.ActionAppend:
		payload["cellphoneNumber"] = action.CellphoneNumber
		payload["name"] = action.Name
		payload["barber"] = action.Barber
	case store.ActionUpdate:
		products := action.SelectedProducts
		if products == nil {
			products = []string{}
		}
		payload["row"] = rowValue(action.Row)
		payload["totalAmount"] = action.TotalAmount
		payload["paymentType"] = action.PaymentType
		payload["selectedProducts"] = products
	case store.ActionSkip:
		payload["row"] = rowValue(action.Row)
	default:
		return nil, fmt.Errorf("unknown sheet action %q", action.Kind)
	}
	return payload, nil
}

// rowValue sends numeric row ids as numbers, which is how the sheet hands them out.
func rowValue(row string) any {
	if n, err := strconv.Atoi(row); err == nil {
		return n
	}
	return row
}
