package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/metrics"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	clientName   = "UploadClient"
	uploadTracer = "upload.client"
	fileField    = "file"
	maxErrorBody = 512

	defaultMaxElapsed = 2 * time.Minute
)

var ErrNotConfigured = errors.New("upload base url is not configured")

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload rejected with status %d: %s", e.Status, e.Body)
}

// Client pushes exported files to the internal import API.
type Client struct {
	baseURL    string
	token      string
	maxElapsed time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	tracer     trace.Tracer
	metrics    *metrics.Recorder
	newBackOff func() backoff.BackOff
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Recorder `optional:"true"`
}

func NewClient(params Params) *Client {
	uploadConfig := params.Config.UploadConfig

	limit := rate.Inf
	if uploadConfig.RatePerSecond > 0 {
		limit = rate.Limit(uploadConfig.RatePerSecond)
	}

	logger := params.Logger.With(zap.String(logg.Layer, clientName))

	// A zero MaxElapsedTime never stops retrying.
	maxElapsed := uploadConfig.MaxElapsed
	if maxElapsed <= 0 {
		logger.Warn("Upload max elapsed time must be positive, using default",
			zap.Duration("configured", maxElapsed), zap.Duration("default", defaultMaxElapsed))

		maxElapsed = defaultMaxElapsed
	}

	c := &Client{
		baseURL:    strings.TrimRight(uploadConfig.BaseURL, "/"),
		token:      uploadConfig.Token,
		maxElapsed: maxElapsed,
		httpClient: &http.Client{Timeout: uploadConfig.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		tracer:     otel.Tracer(uploadTracer),
		metrics:    params.Metrics,
	}

	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = c.maxElapsed
		b.MaxInterval = 30 * time.Second

		return b
	}

	return c
}

// Upload posts the file at path to <base>/<endpoint> as multipart field
// "file". Server errors and transport failures are retried; 4xx answers are
// final.
func (c *Client) Upload(ctx context.Context, endpoint, path string) (receipt *entity.UploadReceipt, err error) {
	const op = "Upload"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String(logg.Endpoint, endpoint), zap.String(logg.Path, path))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op, attribute.String("endpoint", endpoint))
	defer func() {
		step.End(err)

		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		c.metrics.Upload(endpoint, outcome)
	}()

	if c.baseURL == "" {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, ErrNotConfigured, map[string]any{
			apperr.MetaReason: "upload_disabled",
			apperr.MetaStage:  apperr.StageUpload,
		})
	}

	if strings.TrimSpace(endpoint) == "" {
		return nil, apperr.InvalidReqError(op, "endpoint", errors.New("endpoint is empty"))
	}

	body, contentType, err := encodeFile(path)
	if err != nil {
		return nil, apperr.InvalidReqError(op, "path", err)
	}

	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	attempt := 0

	operation := func() error {
		attempt++

		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warn("Upload request failed, retrying", zap.Int(logg.Attempt, attempt), zap.Error(err))

			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= http.StatusMultipleChoices {
			statusErr := &StatusError{Status: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}

			if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
				logger.Warn("Upload answered with server error, retrying",
					zap.Int(logg.Attempt, attempt), zap.Int("status", resp.StatusCode))

				return statusErr
			}

			return backoff.Permanent(statusErr)
		}

		var decoded entity.UploadReceipt
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode receipt: %w", err))
		}

		receipt = &decoded

		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		code := apperr.CodeUnavailable

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status < http.StatusInternalServerError && statusErr.Status != http.StatusTooManyRequests {
			code = apperr.CodeRejected
		}

		meta := map[string]any{
			apperr.MetaReason:   "upload_failed",
			apperr.MetaStage:    apperr.StageUpload,
			apperr.MetaURL:      url,
			apperr.MetaAttempts: attempt,
		}
		if statusErr != nil {
			meta[apperr.MetaStatus] = statusErr.Status
		}

		return nil, apperr.Wrap(op, code, err, meta)
	}

	logger.Info("File uploaded", zap.String("receipt_id", receipt.ID), zap.Int("rows", receipt.Rows))

	return receipt, nil
}

func encodeFile(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(fileField, filepath.Base(path))
	if err != nil {
		return nil, "", err
	}

	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
