package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/tracing"
)

const maxResponseBytes = 4 << 20

// Session issues catalog queries and tracks the loading and error state of
// the most recent one. Sessions are cheap; create one per request.
type Session struct {
	client *Client

	mu      sync.Mutex
	loading bool
	errMsg  string
}

// Loading reports whether a query is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the message of the last failed query, or "" if it succeeded.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Session) begin() {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Session) finish(msg string) {
	s.mu.Lock()
	s.loading = false
	if msg != "" {
		s.errMsg = msg
	}
	s.mu.Unlock()
}

// Query GETs BaseURL+endpoint with params and returns the raw JSON body.
// The API key is applied after params so callers cannot override it. Any
// failure is recorded in Err and returned; the body is then nil.
func (s *Session) Query(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	return s.query(ctx, endpoint, params, nil)
}

// query is Query with an optional shape check on the body. A check failure
// counts as a decode error for Err, metrics and the span.
func (s *Session) query(ctx context.Context, endpoint string, params url.Values, check func(json.RawMessage) error) (_ json.RawMessage, err error) {
	label := endpointLabel(endpoint)
	ctx, span := tracing.Start(ctx, tracerName, "catalog.Query",
		attribute.String("catalog.endpoint", label),
	)
	start := time.Now()
	outcome := outcomeOK

	s.begin()
	defer func() {
		queryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		queriesTotal.WithLabelValues(label, outcome).Inc()
		tracing.End(span, err)

		msg := ""
		if err != nil {
			msg = errorMessage(err)
			logger.WithContext(ctx, s.client.logger).ErrorContext(ctx, "catalog query failed",
				slog.String("endpoint", endpoint),
				slog.String("outcome", outcome),
				slog.String("error", msg),
			)
		}
		s.finish(msg)
	}()

	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set(CredentialParam, s.client.apiKey)

	target := s.client.baseURL + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		outcome = outcomeTransport
		return nil, apperrors.Upstream("invalid catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.doer.Do(ctx, req)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			outcome = statusOutcome(statusErr)
			return nil, statusErr
		}
		outcome = outcomeTransport
		return nil, apperrors.Upstream(s.transportMessage(err))
	}
	if err := httpclient.CheckStatus(resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			outcome = statusOutcome(statusErr)
		} else {
			outcome = outcomeStatus
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		outcome = outcomeTransport
		return nil, apperrors.Upstream(s.transportMessage(err))
	}
	if !json.Valid(body) {
		outcome = outcomeDecode
		return nil, apperrors.Decode("catalog response", errors.New("invalid JSON"))
	}
	if check != nil {
		if err := check(body); err != nil {
			outcome = outcomeDecode
			return nil, err
		}
	}
	return json.RawMessage(body), nil
}

func statusOutcome(err *httpclient.StatusError) string {
	if httpclient.IsClientError(err.StatusCode) {
		return outcomeClient
	}
	return outcomeStatus
}

// transportMessage describes a failed round trip without the request URL,
// which carries the API key.
func (s *Session) transportMessage(err error) string {
	switch {
	case errors.Is(err, httpclient.ErrCircuitOpen):
		return "catalog unavailable: " + httpclient.ErrCircuitOpen.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "catalog request timed out"
	case errors.Is(err, context.Canceled):
		return "catalog request canceled"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	msg := "catalog request failed: " + err.Error()
	if s.client.apiKey != "" {
		msg = strings.ReplaceAll(msg, s.client.apiKey, "[redacted]")
	}
	return msg
}

// errorMessage returns the text shown to shoppers for err.
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// ListCategories fetches /category. A response that is not a JSON array
// yields an empty list.
func (s *Session) ListCategories(ctx context.Context) ([]domain.Category, error) {
	raw, err := s.Query(ctx, "/category", nil)
	if err != nil {
		return []domain.Category{}, err
	}

	var categories []domain.Category
	if !isArray(raw) || json.Unmarshal(raw, &categories) != nil {
		s.client.logger.WarnContext(ctx, "catalog categories response is not a list")
		return []domain.Category{}, nil
	}
	return categories, nil
}

type productListPayload struct {
	Items      json.RawMessage `json:"items"`
	TotalPages int             `json:"total_pages"`
	Page       int             `json:"page"`
}

// ListProducts fetches one page of /product. category_id is only sent when
// categoryID is non-zero. Failures and malformed responses yield an empty
// page that reports the requested page number.
func (s *Session) ListProducts(ctx context.Context, page, categoryID int) (domain.ProductPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	if categoryID != 0 {
		params.Set("category_id", strconv.Itoa(categoryID))
	}

	raw, err := s.Query(ctx, "/product", params)
	if err != nil {
		return domain.EmptyProductPage(page), err
	}

	var payload productListPayload
	if !isObject(raw) || json.Unmarshal(raw, &payload) != nil || !isArray(payload.Items) {
		s.client.logger.WarnContext(ctx, "catalog product listing has no items list",
			slog.Int("page", page),
		)
		return domain.EmptyProductPage(page), nil
	}

	var products []domain.Product
	if err := json.Unmarshal(payload.Items, &products); err != nil {
		s.client.logger.WarnContext(ctx, "catalog product listing items are malformed",
			slog.String("error", err.Error()),
		)
		return domain.EmptyProductPage(page), nil
	}

	result := domain.ProductPage{
		Products:    products,
		TotalPages:  payload.TotalPages,
		CurrentPage: payload.Page,
	}
	if result.CurrentPage == 0 {
		result.CurrentPage = 1
	}
	return result, nil
}

// GetProduct fetches /product/{id}. It returns nil on any failure,
// including a body that is not a product object.
func (s *Session) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	var product domain.Product
	_, err := s.query(ctx, "/product/"+strconv.Itoa(id), nil, func(raw json.RawMessage) error {
		if !isObject(raw) {
			return apperrors.Decode("product", errors.New("not an object"))
		}
		if err := json.Unmarshal(raw, &product); err != nil {
			return apperrors.Decode("product", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func isArray(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '['
}

func isObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}
