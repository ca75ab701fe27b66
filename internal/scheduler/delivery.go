package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/change"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/webhook"
)

const retrySweepInterval = 10 * time.Second
const retrySweepBatchSize = 50

// enqueuePriceChangeDelivery builds and queues a product.price_changed
// event's first delivery attempt. Queueing failures (queue full, secret
// undecryptable) are logged and swallowed: a dropped notification never
// fails the crawl that detected it.
func (s *Scheduler) enqueuePriceChangeDelivery(ctx context.Context, website *models.MonitoredWebsite,
	product *models.Product, crawlLog *models.CrawlExecutionLog, historyID string, detected change.Result) {
	payload := webhook.BuildPriceChangedPayload(historyID, time.Now(), website, product, crawlLog.ID, detected)
	s.enqueueDelivery(ctx, website, historyID, "product.price_changed", payload)
}

// enqueueStockChangeDelivery builds and queues a product.stock_changed
// event's first delivery attempt.
func (s *Scheduler) enqueueStockChangeDelivery(ctx context.Context, website *models.MonitoredWebsite,
	product *models.Product, crawlLog *models.CrawlExecutionLog, historyID string, detected change.Result) {
	payload := webhook.BuildStockChangedPayload(historyID, time.Now(), website, product, crawlLog.ID, detected)
	s.enqueueDelivery(ctx, website, historyID, "product.stock_changed", payload)
}

func (s *Scheduler) enqueueDelivery(ctx context.Context, website *models.MonitoredWebsite, historyID, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal webhook payload", "website_id", website.ID, "event_type", eventType, "error", err)
		return
	}

	secret, err := s.secretForWebsite(ctx, website.ID)
	if err != nil {
		s.logger.Error("failed to resolve webhook secret", "website_id", website.ID, "error", err)
		return
	}

	task := deliveryTask{
		targetURL:        *website.WebhookEndpointURL,
		payload:          body,
		eventType:        eventType,
		secret:           secret,
		websiteID:        website.ID,
		productHistoryID: historyID,
	}

	select {
	case s.deliveryTasks <- task:
	default:
		s.logger.Warn("webhook delivery queue full, dropping task", "website_id", website.ID, "event_type", eventType)
	}
}

// secretForWebsite looks up website's client and decrypts its current
// webhook secret. The plaintext is snapshotted into the deliveryTask at
// enqueue time (spec.md §4.10) so a rotation mid-flight can't change
// what an in-progress delivery signs with.
func (s *Scheduler) secretForWebsite(ctx context.Context, websiteID string) (string, error) {
	website, err := s.repos.Website.GetByID(ctx, websiteID)
	if err != nil {
		return "", err
	}
	if website == nil {
		return "", fmt.Errorf("website %s not found", websiteID)
	}
	client, err := s.repos.Client.GetByID(ctx, website.ClientID)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", fmt.Errorf("client for website %s not found", websiteID)
	}
	return s.encryptor.Decrypt(client.WebhookSecretCurrent)
}

func (s *Scheduler) runDeliveryWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case task := <-s.deliveryTasks:
			s.attemptDelivery(ctx, task)
		}
	}
}

// attemptDelivery fires the first delivery attempt. A retrying or
// exhausted outcome is left on the webhook_delivery_logs row for the
// retry sweeper to pick up; this worker never blocks waiting on a
// retry window.
func (s *Scheduler) attemptDelivery(ctx context.Context, task deliveryTask) {
	if _, err := s.deliverer.Deliver(ctx, webhook.DeliverRequest{
		TargetURL:        task.targetURL,
		Payload:          task.payload,
		EventType:        task.eventType,
		Secret:           task.secret,
		WebsiteID:        task.websiteID,
		ProductHistoryID: task.productHistoryID,
		AttemptNumber:    1,
	}); err != nil {
		s.logger.Error("webhook delivery failed to persist", "website_id", task.websiteID, "error", err)
	}
}

// runRetrySweeper is the second pool named in spec.md §5.1: it polls
// webhook_delivery_logs for retrying rows whose next_retry_at has
// elapsed and re-attempts them, independent of the crawl poller pool.
func (s *Scheduler) runRetrySweeper(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepPendingRetries(ctx)
		}
	}
}

func (s *Scheduler) sweepPendingRetries(ctx context.Context) {
	pending, err := s.repos.WebhookLog.GetPendingRetries(ctx, time.Now(), retrySweepBatchSize)
	if err != nil {
		s.logger.Error("failed to list pending webhook retries", "error", err)
		return
	}
	for _, prev := range pending {
		s.retryDelivery(ctx, prev)
	}
}

// retryDelivery re-attempts a previously retrying delivery, re-resolving
// the client's current secret (it is never persisted on the log row) and
// recovering the event type from the stored payload's own event_type
// field rather than a dedicated column.
func (s *Scheduler) retryDelivery(ctx context.Context, prev *models.WebhookDeliveryLog) {
	var body struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal([]byte(prev.Payload), &body); err != nil {
		s.logger.Error("failed to parse stored webhook payload for retry", "delivery_log_id", prev.ID, "error", err)
		return
	}

	secret, err := s.secretForWebsite(ctx, prev.WebsiteID)
	if err != nil {
		s.logger.Error("failed to resolve webhook secret for retry", "website_id", prev.WebsiteID, "error", err)
		return
	}

	if _, err := s.deliverer.Deliver(ctx, webhook.DeliverRequest{
		TargetURL:        prev.TargetURL,
		Payload:          []byte(prev.Payload),
		EventType:        body.EventType,
		Secret:           secret,
		WebsiteID:        prev.WebsiteID,
		ProductHistoryID: prev.ProductHistoryID,
		AttemptNumber:    prev.AttemptNumber + 1,
	}); err != nil {
		s.logger.Error("webhook retry failed to persist", "website_id", prev.WebsiteID, "error", err)
	}
}
