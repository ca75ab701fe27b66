package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260115-090000",
		Description: "Initial schema: clients, monitored websites, products, history, crawl logs, webhook deliveries",
		Up: []string{
			// Clients own websites and hold the webhook signing secret(s).
			`CREATE TABLE IF NOT EXISTS clients (
				id TEXT PRIMARY KEY,
				webhook_secret_current TEXT NOT NULL,
				webhook_secret_previous TEXT,
				secret_rotation_expires_at TEXT,
				max_websites INTEGER NOT NULL DEFAULT 10,
				max_products_per_website INTEGER NOT NULL DEFAULT 100,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Monitored websites - one crawl target per row.
			`CREATE TABLE IF NOT EXISTS monitored_websites (
				id TEXT PRIMARY KEY,
				client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
				base_url TEXT NOT NULL,
				seed_urls TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending_approval',
				crawl_frequency_minutes INTEGER NOT NULL DEFAULT 1440,
				price_change_threshold_pct REAL NOT NULL DEFAULT 5.0,
				retention_days INTEGER NOT NULL DEFAULT 90,
				discovered_products_pending INTEGER,
				approved_product_count INTEGER NOT NULL DEFAULT 0,
				last_successful_crawl_at TEXT,
				last_crawl_status TEXT,
				webhook_endpoint_url TEXT,
				webhook_enabled INTEGER NOT NULL DEFAULT 0,
				consecutive_failures INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_monitored_websites_client ON monitored_websites(client_id)`,
			`CREATE INDEX IF NOT EXISTS idx_monitored_websites_status ON monitored_websites(status)`,

			// Products - approved, tracked URLs on a website.
			`CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				website_id TEXT NOT NULL REFERENCES monitored_websites(id) ON DELETE CASCADE,
				original_url TEXT NOT NULL,
				normalized_url TEXT NOT NULL,
				extracted_product_id TEXT,
				extraction_method TEXT NOT NULL DEFAULT 'none',
				product_name TEXT NOT NULL DEFAULT '',
				current_price REAL,
				current_currency TEXT NOT NULL DEFAULT 'USD',
				current_stock_status TEXT NOT NULL DEFAULT 'unknown',
				last_crawled_at TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				delisted_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_website_normalized_url ON products(website_id, normalized_url)`,
			`CREATE INDEX IF NOT EXISTS idx_products_website_active ON products(website_id, is_active)`,

			// Crawl execution logs - one row identifies one crawl tick
			// over one website, written before work begins.
			`CREATE TABLE IF NOT EXISTS crawl_execution_logs (
				id TEXT PRIMARY KEY,
				website_id TEXT NOT NULL REFERENCES monitored_websites(id) ON DELETE CASCADE,
				started_at TEXT NOT NULL,
				completed_at TEXT,
				duration_seconds REAL,
				status TEXT NOT NULL DEFAULT 'pending',
				products_processed INTEGER NOT NULL DEFAULT 0,
				changes_detected INTEGER NOT NULL DEFAULT 0,
				errors_count INTEGER NOT NULL DEFAULT 0,
				error_details TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				triggered_by TEXT NOT NULL DEFAULT 'scheduled'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_crawl_logs_website_started ON crawl_execution_logs(website_id, started_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_crawl_logs_status ON crawl_execution_logs(status)`,

			// Product history - append-only snapshots, one per crawl.
			// partition_key (YYYY-MM) emulates spec's monthly range
			// partitioning on crawl_timestamp; see DESIGN.md.
			`CREATE TABLE IF NOT EXISTS product_history (
				id TEXT PRIMARY KEY,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				website_id TEXT NOT NULL REFERENCES monitored_websites(id) ON DELETE CASCADE,
				crawl_log_id TEXT NOT NULL REFERENCES crawl_execution_logs(id) ON DELETE CASCADE,
				crawl_timestamp TEXT NOT NULL,
				price REAL,
				currency TEXT NOT NULL,
				stock_status TEXT NOT NULL,
				price_changed INTEGER NOT NULL DEFAULT 0,
				stock_changed INTEGER NOT NULL DEFAULT 0,
				price_change_pct REAL,
				raw_crawl_data TEXT,
				partition_key TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_product_history_product_ts ON product_history(product_id, crawl_timestamp DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_product_history_partition ON product_history(partition_key)`,

			// Webhook delivery logs - one row per delivery attempt.
			`CREATE TABLE IF NOT EXISTS webhook_delivery_logs (
				id TEXT PRIMARY KEY,
				product_history_id TEXT NOT NULL REFERENCES product_history(id) ON DELETE CASCADE,
				website_id TEXT NOT NULL REFERENCES monitored_websites(id) ON DELETE CASCADE,
				target_url TEXT NOT NULL,
				payload TEXT NOT NULL,
				signature TEXT NOT NULL,
				timestamp_header TEXT NOT NULL,
				attempt_number INTEGER NOT NULL DEFAULT 1,
				delivery_timestamp TEXT NOT NULL,
				http_status_code INTEGER,
				status TEXT NOT NULL DEFAULT 'pending',
				response_body TEXT,
				error_message TEXT,
				next_retry_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_logs_retry ON webhook_delivery_logs(status, next_retry_at)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_logs_history ON webhook_delivery_logs(product_history_id)`,
		},
	})
}
