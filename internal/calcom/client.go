// Package calcom provides a Cal.com v2 API client with availability
// caching and retry logic.
package calcom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/model"
	"github.com/telecalbot/telecalbot/pkg/logger"
	"github.com/telecalbot/telecalbot/pkg/metrics"
)

const (
	defaultBaseURL    = "https://api.cal.com/v2"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
	defaultCacheTTL   = 5 * time.Minute
)

// APIError describes a failed Cal.com API call. StatusCode 0 means the
// request never produced an HTTP response (transport failure).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("calcom: transport failure: %s", e.Message)
	}
	return fmt.Sprintf("calcom: API error %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a Cal.com 409 slot conflict.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Config controls how the client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	APIVersion string
	CacheTTL   time.Duration
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client wraps the Cal.com v2 REST endpoints the bot needs.
type Client struct {
	baseURL    string
	apiKey     string
	apiVersion string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	cache      *availabilityCache
	logger     *logger.Logger
	tracer     trace.Tracer
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("calcom: API key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		cache:      newAvailabilityCache(cacheTTL),
		logger:     log,
		tracer:     otel.Tracer("calcom"),
	}, nil
}

// GetAvailability returns available slots for an event type in the
// window [startDate, endDate], localized to the given timezone. A live
// cached snapshot is returned without a network call.
func (c *Client) GetAvailability(ctx context.Context, eventTypeID int, startDate, endDate time.Time, timezone string) (model.AvailabilitySnapshot, error) {
	key := cacheKey{
		eventTypeID: eventTypeID,
		startDate:   startDate.Format("2006-01-02"),
		endDate:     endDate.Format("2006-01-02"),
		timezone:    timezone,
	}

	if snapshot, ok := c.cache.get(key); ok {
		metrics.AvailabilityCacheHits.Inc()
		c.logger.Debug("availability cache hit",
			zap.Int("event_type_id", eventTypeID),
			zap.String("timezone", timezone),
		)
		return snapshot, nil
	}
	metrics.AvailabilityCacheMisses.Inc()

	query := url.Values{}
	query.Set("eventTypeId", strconv.Itoa(eventTypeID))
	query.Set("startTime", key.startDate+"T00:00:00Z")
	query.Set("endTime", key.endDate+"T23:59:59Z")
	query.Set("timeZone", timezone)

	data, err := c.doRequest(ctx, http.MethodGet, "/slots/available", query, nil)
	if err != nil {
		return model.AvailabilitySnapshot{}, err
	}

	var envelope struct {
		Data model.AvailabilitySnapshot `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return model.AvailabilitySnapshot{}, fmt.Errorf("calcom: decode availability: %w", err)
	}

	c.cache.put(key, envelope.Data)
	return envelope.Data, nil
}

// CreateBooking creates a booking. On success the whole availability
// cache is cleared: the booking just consumed a slot, so every cached
// window may now be stale.
func (c *Client) CreateBooking(ctx context.Context, req model.BookingRequest) (*model.BookingResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/bookings", nil, req)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data model.BookingResult `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("calcom: decode booking: %w", err)
	}

	c.cache.clear()
	metrics.BookingsCreatedTotal.Inc()
	c.logger.Debug("cleared availability cache after booking",
		zap.Int64("booking_id", envelope.Data.ID),
	)
	return &envelope.Data, nil
}

// CancelBooking cancels a booking by its Cal.com UID. The cancellation
// releases a slot, so the availability cache is cleared on success.
func (c *Client) CancelBooking(ctx context.Context, uid, reason string) error {
	body := map[string]string{"cancellationReason": reason}
	_, err := c.doRequest(ctx, http.MethodPost, "/bookings/"+uid+"/cancel", nil, body)
	if err != nil {
		return err
	}
	c.cache.clear()
	return nil
}

// retryableStatus reports whether an HTTP status warrants a retry.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doRequest performs one API call with exponential backoff on
// retryable failures. All client methods go through here.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "calcom "+method+" "+path)
	defer span.End()

	start := time.Now()
	correlationID := uuid.New().String()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("calcom: marshal request: %w", err)
		}
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastStatus int
	var lastMessage string

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("calcom: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("cal-api-version", c.apiVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastStatus = 0
			lastMessage = err.Error()
			if attempt == c.maxRetries {
				break
			}
			c.logRetry(path, correlationID, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("calcom: read response: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.RecordCalcomRequest(path, "ok", time.Since(start).Seconds())
			return data, nil
		}

		lastStatus = resp.StatusCode
		lastMessage = strings.TrimSpace(string(data))

		if retryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			c.logRetry(path, correlationID, attempt, resp.StatusCode, nil)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		// Non-retryable client error, or a retryable status on the
		// final attempt.
		break
	}

	apiErr := &APIError{StatusCode: lastStatus, Message: lastMessage}
	span.RecordError(apiErr)
	metrics.RecordCalcomRequest(path, "error", time.Since(start).Seconds())
	c.logger.Error("Cal.com request failed",
		zap.String("path", path),
		zap.String("correlation_id", correlationID),
		zap.Int("status", lastStatus),
	)
	return nil, apiErr
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path, correlationID string, attempt, status int, err error) {
	metrics.CalcomRetriesTotal.WithLabelValues(path).Inc()
	c.logger.Warn("Cal.com retry",
		zap.String("path", path),
		zap.String("correlation_id", correlationID),
		zap.Int("attempt", attempt+1),
		zap.Int("status", status),
		zap.Error(err),
	)
}
