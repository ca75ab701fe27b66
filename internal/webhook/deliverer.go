package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/obsrv/monitor/internal/constants"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/repository"
)

// maxResponseBodyBytes bounds the persisted response_body, per spec.md §3.
const maxResponseBodyBytes = 1024

// DeliverRequest carries everything one delivery attempt needs.
type DeliverRequest struct {
	TargetURL        string
	Payload          []byte
	EventType        string
	Secret           string
	WebsiteID        string
	ProductHistoryID string
	AttemptNumber    int
}

// Deliverer performs signed webhook POSTs and persists the outcome of
// every attempt, grounded on webhook_service.go's deliverWithRetries and
// deliver, generalized to the fixed RetrySchedule-driven state machine.
type Deliverer struct {
	client *http.Client
	signer *Signer
	logs   repository.WebhookLogRepository
	logger *slog.Logger
}

// NewDeliverer builds a Deliverer whose HTTP client enforces timeout on
// every delivery attempt.
func NewDeliverer(signer *Signer, logs repository.WebhookLogRepository, timeout time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		client: &http.Client{Timeout: timeout},
		signer: signer,
		logs:   logs,
		logger: logger,
	}
}

// Deliver performs one delivery attempt and persists a WebhookDeliveryLog
// row regardless of outcome, per spec.md §4.9.
func (d *Deliverer) Deliver(ctx context.Context, req DeliverRequest) (*models.WebhookDeliveryLog, error) {
	now := time.Now()
	signatureHeader := d.signer.Sign(req.Payload, req.Secret, now)
	ts, _, _ := parseHeader(signatureHeader)

	log := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  req.ProductHistoryID,
		WebsiteID:         req.WebsiteID,
		TargetURL:         req.TargetURL,
		Payload:           string(req.Payload),
		Signature:         signatureHeader,
		TimestampHeader:   fmt.Sprintf("t=%d", ts),
		AttemptNumber:     req.AttemptNumber,
		DeliveryTimestamp: now,
	}

	statusCode, body, sendErr := d.send(ctx, req, signatureHeader)
	if statusCode > 0 {
		log.HTTPStatusCode = &statusCode
	}
	if body != "" {
		log.ResponseBody = &body
	}

	success := sendErr == nil && statusCode >= 200 && statusCode < 300
	switch {
	case success:
		log.Status = models.DeliveryStatusSuccess
	case req.AttemptNumber < 3:
		log.Status = models.DeliveryStatusRetrying
		next := now.Add(constants.RetrySchedule[req.AttemptNumber])
		log.NextRetryAt = &next
	default:
		log.Status = models.DeliveryStatusExhausted
	}

	switch {
	case sendErr != nil:
		msg := sendErr.Error()
		log.ErrorMessage = &msg
	case !success:
		msg := fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode))
		log.ErrorMessage = &msg
	}

	if success {
		d.logger.Info("webhook: delivered", "url", req.TargetURL, "attempt", req.AttemptNumber, "status", statusCode)
	} else {
		d.logger.Warn("webhook: delivery attempt failed", "url", req.TargetURL, "attempt", req.AttemptNumber, "status", log.Status, "error", sendErr)
	}

	if err := d.logs.Create(ctx, log); err != nil {
		return log, fmt.Errorf("failed to persist webhook delivery log: %w", err)
	}
	return log, nil
}

func (d *Deliverer) send(ctx context.Context, req DeliverRequest, signatureHeader string) (int, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.TargetURL, bytes.NewReader(req.Payload))
	if err != nil {
		return 0, "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", constants.HeaderUserAgent)
	httpReq.Header.Set(constants.HeaderSignature, signatureHeader)
	httpReq.Header.Set(constants.HeaderEvent, req.EventType)
	httpReq.Header.Set(constants.HeaderDeliveryID, uuid.NewString())

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	return resp.StatusCode, string(bodyBytes), nil
}
