// Package schema defines the database schema for development.
//
// DEVELOPMENT USE ONLY
// This file contains the current database schema and is used for development and testing.
// Before deploying to production, these table definitions should be converted to proper migrations.
package schema

// TableDefinitions contains all the SQL statements to create the database tables
// Don't put REFERENCES and don't put CHECK constraints in the CREATE TABLE statements
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS segments (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		utm_term VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		status SMALLINT NOT NULL DEFAULT 1,
		attributes JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS segment_subscribers (
		segment_id BIGINT NOT NULL,
		subscriber_id BIGINT NOT NULL,
		PRIMARY KEY (segment_id, subscriber_id)
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		utm_name VARCHAR(255) NOT NULL DEFAULT '',
		from_name VARCHAR(255) NOT NULL DEFAULT '',
		from_email VARCHAR(255) NOT NULL,
		reply_to_name VARCHAR(255) NOT NULL DEFAULT '',
		reply_to_email VARCHAR(255) NOT NULL DEFAULT '',
		subject VARCHAR(998) NOT NULL DEFAULT '',
		html_body TEXT NOT NULL DEFAULT '',
		text_body TEXT NOT NULL DEFAULT '',
		segment_id BIGINT,
		status SMALLINT NOT NULL DEFAULT 0,
		start_date TIMESTAMP,
		end_date TIMESTAMP,
		first_sent TIMESTAMP,
		signature_key BYTEA NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS send_records (
		id BIGSERIAL PRIMARY KEY,
		campaign_id BIGINT,
		subscriber_id BIGINT,
		email VARCHAR(255) NOT NULL,
		datetime TIMESTAMP NOT NULL DEFAULT NOW(),
		result CHAR(2) NOT NULL DEFAULT 'P',
		esp_message_id VARCHAR(255),
		tracking_id CHAR(12) UNIQUE NOT NULL,
		open_count BIGINT NOT NULL DEFAULT 0,
		click_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGSERIAL PRIMARY KEY,
		type VARCHAR(20) NOT NULL,
		message_id VARCHAR(255),
		recipient VARCHAR(255),
		provider VARCHAR(50) NOT NULL DEFAULT '',
		is_permanent BOOLEAN NOT NULL DEFAULT FALSE,
		raw_payload TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
}

// IndexDefinitions contains the secondary indexes and unique constraints
// that cannot live inline in the table definitions.
var IndexDefinitions = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS send_records_campaign_subscriber
		ON send_records (campaign_id, subscriber_id)
		WHERE campaign_id IS NOT NULL AND subscriber_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS send_records_esp_message_id
		ON send_records (esp_message_id)
		WHERE esp_message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS send_records_email_datetime
		ON send_records (email, datetime)`,
	`CREATE INDEX IF NOT EXISTS send_records_subscriber_datetime
		ON send_records (subscriber_id, datetime)`,
	`CREATE INDEX IF NOT EXISTS campaigns_status
		ON campaigns (status)`,
}
