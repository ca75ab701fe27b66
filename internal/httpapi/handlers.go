package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/repository"
	"github.com/obsrv/monitor/internal/scheduler"
)

// Handlers implements the four C12 operations against the repositories
// and the running Scheduler.
type Handlers struct {
	repos     *repository.Repositories
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// NewHandlers builds a Handlers bound to repos and sched.
func NewHandlers(repos *repository.Repositories, sched *scheduler.Scheduler, logger *slog.Logger) *Handlers {
	return &Handlers{repos: repos, scheduler: sched, logger: logger.With("component", "httpapi")}
}

// TriggerCrawlInput identifies the website to crawl on demand.
type TriggerCrawlInput struct {
	ID string `path:"id" doc:"Monitored website ID"`
}

// TriggerCrawlOutput reports the outcome of a synchronously-run manual crawl.
type TriggerCrawlOutput struct {
	Body struct {
		CrawlLogID        string `json:"crawl_log_id" doc:"ID of the resulting crawl execution log"`
		Status            string `json:"status" doc:"Terminal crawl status"`
		ProductsProcessed int    `json:"products_processed" doc:"Number of products crawled"`
		ChangesDetected   int    `json:"changes_detected" doc:"Number of products with a detected change"`
	}
}

// TriggerCrawl runs a crawl for one website inline, since the operator is
// waiting on the result. It goes through the same Scheduler.CrawlWebsite
// path as scheduled crawls and so is subject to the same per-product
// fanout; the crawl log it opens records triggered_by=scheduled, the same
// as a scheduled tick.
func (h *Handlers) TriggerCrawl(ctx context.Context, input *TriggerCrawlInput) (*TriggerCrawlOutput, error) {
	website, err := h.repos.Website.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load website: " + err.Error())
	}
	if website == nil {
		return nil, huma.Error404NotFound("website not found")
	}

	if err := h.scheduler.CrawlWebsite(ctx, website); err != nil {
		return nil, huma.Error500InternalServerError("manual crawl failed: " + err.Error())
	}

	logs, err := h.repos.CrawlLog.GetByWebsiteID(ctx, input.ID, 1, 0)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load crawl log: " + err.Error())
	}
	if len(logs) == 0 {
		return nil, huma.Error500InternalServerError("crawl completed but no log was recorded")
	}

	out := &TriggerCrawlOutput{}
	out.Body.CrawlLogID = logs[0].ID
	out.Body.Status = string(logs[0].Status)
	out.Body.ProductsProcessed = logs[0].ProductsProcessed
	out.Body.ChangesDetected = logs[0].ChangesDetected
	return out, nil
}

// ResumeWebsiteInput identifies the paused website to resume.
type ResumeWebsiteInput struct {
	ID string `path:"id" doc:"Monitored website ID"`
}

// ResumeWebsiteOutput reflects the website's post-resume state.
type ResumeWebsiteOutput struct {
	Body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
}

// ResumeWebsite clears consecutive_failures and reactivates a paused
// website (spec.md §7: "recovery requires manual status change").
func (h *Handlers) ResumeWebsite(ctx context.Context, input *ResumeWebsiteInput) (*ResumeWebsiteOutput, error) {
	website, err := h.repos.Website.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load website: " + err.Error())
	}
	if website == nil {
		return nil, huma.Error404NotFound("website not found")
	}
	if website.Status != models.WebsiteStatusPaused {
		return nil, huma.Error409Conflict(fmt.Sprintf("website is %s, not paused", website.Status))
	}

	website.Status = models.WebsiteStatusActive
	if err := h.repos.Website.Update(ctx, website); err != nil {
		return nil, huma.Error500InternalServerError("failed to reactivate website: " + err.Error())
	}
	if err := h.repos.Website.ResetConsecutiveFailures(ctx, website.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to reset failure count: " + err.Error())
	}

	out := &ResumeWebsiteOutput{}
	out.Body.ID = website.ID
	out.Body.Status = string(models.WebsiteStatusActive)
	return out, nil
}

// ListCrawlLogsInput paginates a website's crawl history.
type ListCrawlLogsInput struct {
	ID     string `path:"id" doc:"Monitored website ID"`
	Limit  int    `query:"limit" doc:"Max rows to return" default:"20"`
	Offset int    `query:"offset" doc:"Rows to skip" default:"0"`
}

// CrawlLogOutput is one operator-facing crawl execution log row.
type CrawlLogOutput struct {
	ID                string  `json:"id"`
	StartedAt         string  `json:"started_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty"`
	Status            string  `json:"status"`
	ProductsProcessed int     `json:"products_processed"`
	ChangesDetected   int     `json:"changes_detected"`
	ErrorsCount       int     `json:"errors_count"`
	TriggeredBy       string  `json:"triggered_by"`
}

// ListCrawlLogsOutput wraps the newest-first page of crawl logs.
type ListCrawlLogsOutput struct {
	Body struct {
		CrawlLogs []CrawlLogOutput `json:"crawl_logs"`
	}
}

// ListCrawlLogs returns recent crawl execution logs for a website, newest
// first, for operator triage.
func (h *Handlers) ListCrawlLogs(ctx context.Context, input *ListCrawlLogsInput) (*ListCrawlLogsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	logs, err := h.repos.CrawlLog.GetByWebsiteID(ctx, input.ID, limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list crawl logs: " + err.Error())
	}

	out := &ListCrawlLogsOutput{}
	for _, l := range logs {
		row := CrawlLogOutput{
			ID:                l.ID,
			StartedAt:         l.StartedAt.Format(time.RFC3339),
			Status:            string(l.Status),
			ProductsProcessed: l.ProductsProcessed,
			ChangesDetected:   l.ChangesDetected,
			ErrorsCount:       l.ErrorsCount,
			TriggeredBy:       string(l.TriggeredBy),
		}
		if l.CompletedAt != nil {
			s := l.CompletedAt.Format(time.RFC3339)
			row.CompletedAt = &s
		}
		row.DurationSeconds = l.DurationSeconds
		out.Body.CrawlLogs = append(out.Body.CrawlLogs, row)
	}
	return out, nil
}

// ListWebhookDeliveriesInput filters the delivery log by status.
type ListWebhookDeliveriesInput struct {
	Status string `query:"status" doc:"retrying or failed/exhausted" enum:"retrying,failed,exhausted" required:"true"`
	Limit  int    `query:"limit" doc:"Max rows to return" default:"20"`
	Offset int    `query:"offset" doc:"Rows to skip" default:"0"`
}

// WebhookDeliveryOutput is one operator-facing delivery attempt row.
type WebhookDeliveryOutput struct {
	ID                string  `json:"id"`
	WebsiteID         string  `json:"website_id"`
	ProductHistoryID  string  `json:"product_history_id"`
	TargetURL         string  `json:"target_url"`
	AttemptNumber     int     `json:"attempt_number"`
	DeliveryTimestamp string  `json:"delivery_timestamp"`
	HTTPStatusCode    *int    `json:"http_status_code,omitempty"`
	Status            string  `json:"status"`
	ErrorMessage      *string `json:"error_message,omitempty"`
	NextRetryAt       *string `json:"next_retry_at,omitempty"`
}

// ListWebhookDeliveriesOutput wraps a page of delivery attempts.
type ListWebhookDeliveriesOutput struct {
	Body struct {
		Deliveries []WebhookDeliveryOutput `json:"deliveries"`
	}
}

// ListWebhookDeliveries returns recent webhook_delivery_logs rows in the
// requested status, newest first, for operator triage of stuck or
// exhausted deliveries.
func (h *Handlers) ListWebhookDeliveries(ctx context.Context, input *ListWebhookDeliveriesInput) (*ListWebhookDeliveriesOutput, error) {
	status := models.DeliveryStatus(input.Status)
	switch status {
	case models.DeliveryStatusRetrying, models.DeliveryStatusFailed, models.DeliveryStatusExhausted:
	default:
		return nil, huma.Error400BadRequest("status must be one of: retrying, failed, exhausted")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	deliveries, err := h.repos.WebhookLog.ListByStatus(ctx, status, limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list webhook deliveries: " + err.Error())
	}

	out := &ListWebhookDeliveriesOutput{}
	for _, d := range deliveries {
		row := WebhookDeliveryOutput{
			ID:                d.ID,
			WebsiteID:         d.WebsiteID,
			ProductHistoryID:  d.ProductHistoryID,
			TargetURL:         d.TargetURL,
			AttemptNumber:     d.AttemptNumber,
			DeliveryTimestamp: d.DeliveryTimestamp.Format(time.RFC3339),
			HTTPStatusCode:    d.HTTPStatusCode,
			Status:            string(d.Status),
			ErrorMessage:      d.ErrorMessage,
		}
		if d.NextRetryAt != nil {
			s := d.NextRetryAt.Format(time.RFC3339)
			row.NextRetryAt = &s
		}
		out.Body.Deliveries = append(out.Body.Deliveries, row)
	}
	return out, nil
}
