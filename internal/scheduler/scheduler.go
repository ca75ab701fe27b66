// Package scheduler drives the steady-state monitoring loop: claim due
// websites, crawl their active products in sequence, detect changes,
// write history, and enqueue signed webhook deliveries.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/obsrv/monitor/internal/change"
	"github.com/obsrv/monitor/internal/config"
	"github.com/obsrv/monitor/internal/crypto"
	"github.com/obsrv/monitor/internal/fetch"
	"github.com/obsrv/monitor/internal/history"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/parse"
	"github.com/obsrv/monitor/internal/repository"
	"github.com/obsrv/monitor/internal/webhook"
)

const failureThreshold = 3

// deliveryTask is the unit of work handed to the webhook pool, carrying
// a copy of the client's webhook secret decrypted at enqueue time so a
// subsequent rotation doesn't change what an in-flight delivery signs
// with (spec.md §4.10).
type deliveryTask struct {
	targetURL        string
	payload          []byte
	eventType        string
	secret           string
	websiteID        string
	productHistoryID string
}

// Scheduler is an adaptive-backoff poller pool over due websites,
// grounded on worker/worker.go's runWorker loop, generalized from
// per-job claiming to per-website claiming.
type Scheduler struct {
	repos     *repository.Repositories
	fetcher   *fetch.Fetcher
	historyW  *history.Writer
	deliverer *webhook.Deliverer
	encryptor *crypto.Encryptor
	cfg       *config.Config
	logger    *slog.Logger

	basePollInterval time.Duration
	maxPollInterval  time.Duration
	concurrency      int

	stop       chan struct{}
	wg         sync.WaitGroup
	activeJobs int64
	activeMu   sync.Mutex

	deliveryTasks chan deliveryTask
}

// New builds a Scheduler. encryptor decrypts Client.WebhookSecretCurrent/
// Previous before they reach the Deliverer.
func New(repos *repository.Repositories, fetcher *fetch.Fetcher, historyW *history.Writer,
	deliverer *webhook.Deliverer, encryptor *crypto.Encryptor,
	cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		repos:            repos,
		fetcher:          fetcher,
		historyW:         historyW,
		deliverer:        deliverer,
		encryptor:        encryptor,
		cfg:              cfg,
		logger:           logger.With("component", "scheduler"),
		basePollInterval: time.Second,
		maxPollInterval:  30 * time.Second,
		concurrency:      cfg.MaxConcurrentCrawls,
		stop:             make(chan struct{}),
		deliveryTasks:    make(chan deliveryTask, 256),
	}
}

// Start launches the crawl poller pool and the webhook delivery pool.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting", "concurrency", s.concurrency)
	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.runPoller(ctx, i)
	}
	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.runDeliveryWorker(ctx)
	}
	s.wg.Add(1)
	go s.runRetrySweeper(ctx)
}

// ActiveJobs reports the number of website crawls currently in flight.
func (s *Scheduler) ActiveJobs() int64 {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.activeJobs
}

// Stop signals all pollers and delivery workers to exit, polls for up to
// gracePeriod until no crawl is in flight, then blocks until every
// goroutine has returned (that final wait has no time limit), mirroring
// worker.go's Stop.
func (s *Scheduler) Stop(gracePeriod time.Duration) {
	s.logger.Info("stopping", "grace_period", gracePeriod)
	close(s.stop)

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if s.ActiveJobs() == 0 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	s.wg.Wait()
	s.logger.Info("stopped")
}

func (s *Scheduler) runPoller(ctx context.Context, id int) {
	defer s.wg.Done()
	interval := s.basePollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			found := s.pollOnce(ctx, id)
			if found {
				interval = s.basePollInterval
			} else {
				interval *= 2
				if interval > s.maxPollInterval {
					interval = s.maxPollInterval
				}
			}
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context, pollerID int) bool {
	website, err := s.repos.Website.ClaimDueForCrawl(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to claim website", "poller", pollerID, "error", err)
		return false
	}
	if website == nil {
		return false
	}

	s.activeMu.Lock()
	s.activeJobs++
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		s.activeJobs--
		s.activeMu.Unlock()
	}()

	if err := s.CrawlWebsite(ctx, website); err != nil {
		s.logger.Error("crawl tick failed", "website_id", website.ID, "error", err)
	}
	return true
}

// CrawlWebsite runs one full crawl tick for website: open a crawl log,
// crawl each active product in sequence, close the log, and update the
// website's failure/backoff state, per spec.md §4.10 steps 2-5.
func (s *Scheduler) CrawlWebsite(ctx context.Context, website *models.MonitoredWebsite) error {
	started := time.Now()
	crawlLog := &models.CrawlExecutionLog{
		ID:          ulid.Make().String(),
		WebsiteID:   website.ID,
		StartedAt:   started,
		Status:      models.CrawlStatusRunning,
		TriggeredBy: models.TriggeredByScheduled,
	}
	if err := s.repos.CrawlLog.Create(ctx, crawlLog); err != nil {
		return err
	}

	products, err := s.repos.Product.ListActiveByWebsiteID(ctx, website.ID)
	if err != nil {
		return err
	}

	processed, changesDetected, errorsCount := 0, 0, 0
	for _, product := range products {
		changed, err := s.crawlProduct(ctx, website, product, crawlLog)
		if err != nil {
			s.logger.Warn("product crawl failed", "website_id", website.ID, "product_id", product.ID, "error", err)
			errorsCount++
			continue
		}
		processed++
		if changed {
			changesDetected++
		}
	}

	completed := time.Now()
	duration := completed.Sub(started).Seconds()
	crawlLog.CompletedAt = &completed
	crawlLog.DurationSeconds = &duration
	crawlLog.ProductsProcessed = processed
	crawlLog.ChangesDetected = changesDetected
	crawlLog.ErrorsCount = errorsCount

	switch {
	case processed == 0 && len(products) > 0:
		crawlLog.Status = models.CrawlStatusFailed
	case errorsCount > 0:
		crawlLog.Status = models.CrawlStatusPartialSuccess
	default:
		crawlLog.Status = models.CrawlStatusSuccess
	}
	if err := s.repos.CrawlLog.Complete(ctx, crawlLog); err != nil {
		return err
	}

	return s.updateWebsiteAfterCrawl(ctx, website, crawlLog)
}

func (s *Scheduler) updateWebsiteAfterCrawl(ctx context.Context, website *models.MonitoredWebsite, crawlLog *models.CrawlExecutionLog) error {
	website.LastCrawlStatus = &crawlLog.Status
	if crawlLog.Status == models.CrawlStatusSuccess || crawlLog.Status == models.CrawlStatusPartialSuccess {
		now := time.Now()
		website.LastSuccessfulCrawlAt = &now
	}
	if err := s.repos.Website.Update(ctx, website); err != nil {
		return err
	}

	if crawlLog.Status == models.CrawlStatusFailed {
		// IncrementConsecutiveFailures flips status to paused in the same
		// transaction once the threshold is reached (spec.md §4.10 step 5);
		// last_successful_crawl_at is left as ClaimDueForCrawl stamped it,
		// since that stamp exists purely to prevent double-claiming and is
		// not a record of crawl outcome.
		_, err := s.repos.Website.IncrementConsecutiveFailures(ctx, website.ID, failureThreshold)
		return err
	}
	return s.repos.Website.ResetConsecutiveFailures(ctx, website.ID)
}

// crawlProduct runs Fetcher -> Parser -> Change Detector -> History
// Writer for one product and enqueues a webhook delivery task if the
// change qualifies for emission. Returns whether a change was detected.
func (s *Scheduler) crawlProduct(ctx context.Context, website *models.MonitoredWebsite, product *models.Product, crawlLog *models.CrawlExecutionLog) (bool, error) {
	fetchResult, err := s.fetcher.Fetch(ctx, product.NormalizedURL)
	if err != nil {
		return false, err
	}

	parsed := parse.Parse(fetchResult.Body)

	previous, err := s.repos.History.GetLatestByProductID(ctx, product.ID)
	if err != nil {
		return false, err
	}
	detected := change.Detect(previous, parsed.Price, models.StockStatus(parsed.StockStatus), website.PriceChangeThresholdPct)

	historyID, err := s.historyW.Write(ctx, product, crawlLog, parsed, fetchResult, detected)
	if err != nil {
		return false, err
	}

	if website.WebhookEnabled && website.WebhookEndpointURL != nil {
		if detected.PriceChanged && detected.ExceededThreshold {
			s.enqueuePriceChangeDelivery(ctx, website, product, crawlLog, historyID, detected)
		}
		if detected.StockChanged {
			s.enqueueStockChangeDelivery(ctx, website, product, crawlLog, historyID, detected)
		}
	}

	return detected.PriceChanged || detected.StockChanged, nil
}
