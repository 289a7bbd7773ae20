package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresDB struct {
	*store
}

func OpenPostgres(dsn string) (*PostgresDB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &PostgresDB{store: newStore(db, dialectPostgres)}, nil
}

func (p *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, pgSchema); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `ALTER TABLE users ADD COLUMN IF NOT EXISTS company_name TEXT NOT NULL DEFAULT ''`)
	return err
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'individual',
	status TEXT NOT NULL DEFAULT 'active',
	display_name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	phone_verified BOOLEAN NOT NULL DEFAULT FALSE,
	identity_verified BOOLEAN NOT NULL DEFAULT FALSE,
	corporate_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS otp_codes (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	purpose TEXT NOT NULL,
	target TEXT NOT NULL DEFAULT '',
	code_hash TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	expires_at TIMESTAMPTZ NOT NULL,
	used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_otp_codes_user ON otp_codes(user_id, purpose, id DESC);

CREATE TABLE IF NOT EXISTS webauthn_credentials (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	credential_id TEXT NOT NULL UNIQUE,
	data_json TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_used_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS webauthn_sessions (
	id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL DEFAULT 0,
	flow TEXT NOT NULL,
	data_json TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS categories (
	id BIGSERIAL PRIMARY KEY,
	parent_id BIGINT REFERENCES categories(id) ON DELETE RESTRICT,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	sort_order INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_id);

CREATE TABLE IF NOT EXISTS vehicle_brands (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS vehicle_models (
	id BIGSERIAL PRIMARY KEY,
	brand_id BIGINT NOT NULL REFERENCES vehicle_brands(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	UNIQUE(brand_id, slug)
);

CREATE TABLE IF NOT EXISTS vehicle_versions (
	id BIGSERIAL PRIMARY KEY,
	model_id BIGINT NOT NULL REFERENCES vehicle_models(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	year_from INTEGER NOT NULL,
	year_to INTEGER NOT NULL DEFAULT 0,
	fuel TEXT NOT NULL DEFAULT '',
	transmission TEXT NOT NULL DEFAULT '',
	body_type TEXT NOT NULL DEFAULT '',
	engine_cc INTEGER NOT NULL DEFAULT 0,
	horsepower INTEGER NOT NULL DEFAULT 0,
	eurotax_code TEXT NOT NULL DEFAULT '',
	UNIQUE(model_id, name, year_from)
);

CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	category_id BIGINT NOT NULL REFERENCES categories(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'TRY',
	city TEXT NOT NULL DEFAULT '',
	district TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'PENDING',
	attributes_json TEXT NOT NULL DEFAULT '{}',
	vehicle_version_id BIGINT REFERENCES vehicle_versions(id) ON DELETE SET NULL,
	search_text TEXT NOT NULL DEFAULT '',
	view_count BIGINT NOT NULL DEFAULT 0,
	favorite_count BIGINT NOT NULL DEFAULT 0,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	published_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_listings_status_created ON listings(status, created_at);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category_id, status);
CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_listings_expiry ON listings(status, expires_at);

CREATE TABLE IF NOT EXISTS listing_attributes (
	listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (listing_id, key)
);
CREATE INDEX IF NOT EXISTS idx_listing_attributes_kv ON listing_attributes(key, value);

CREATE TABLE IF NOT EXISTS listing_photos (
	id BIGSERIAL PRIMARY KEY,
	listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	object_key TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_listing_photos_listing ON listing_photos(listing_id, sort_order);

CREATE TABLE IF NOT EXISTS favorites (
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, listing_id)
);

CREATE TABLE IF NOT EXISTS saved_searches (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	query_json TEXT NOT NULL,
	alert BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_saved_searches_user ON saved_searches(user_id);

CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	buyer_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	seller_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(listing_id, buyer_id)
);
CREATE INDEX IF NOT EXISTS idx_conversations_buyer ON conversations(buyer_id, last_message_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_seller ON conversations(seller_id, last_message_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	body TEXT NOT NULL,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

CREATE TABLE IF NOT EXISTS notifications (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	actor_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	resource_path TEXT NOT NULL DEFAULT '',
	listing_id BIGINT REFERENCES listings(id) ON DELETE SET NULL,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id, read_at);

CREATE TABLE IF NOT EXISTS verification_requests (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	national_id TEXT NOT NULL DEFAULT '',
	full_name TEXT NOT NULL DEFAULT '',
	birth_year INTEGER NOT NULL DEFAULT 0,
	tax_number TEXT NOT NULL DEFAULT '',
	tax_office TEXT NOT NULL DEFAULT '',
	trade_name TEXT NOT NULL DEFAULT '',
	document_key TEXT NOT NULL DEFAULT '',
	reviewer_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	reviewed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_verification_one_pending
	ON verification_requests(user_id, kind) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_verification_status ON verification_requests(status, created_at);

CREATE TABLE IF NOT EXISTS moderation_actions (
	id BIGSERIAL PRIMARY KEY,
	admin_id BIGINT NOT NULL REFERENCES users(id),
	target_type TEXT NOT NULL,
	target_id BIGINT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_moderation_actions_target ON moderation_actions(target_type, created_at DESC);

CREATE TABLE IF NOT EXISTS pages (
	id BIGSERIAL PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	published BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS webhooks (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	secret TEXT NOT NULL DEFAULT '',
	events_csv TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_webhooks_user ON webhooks(user_id);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id BIGSERIAL PRIMARY KEY,
	webhook_id BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
	event TEXT NOT NULL,
	delivery_uid TEXT NOT NULL,
	attempt INTEGER NOT NULL DEFAULT 1,
	status_code INTEGER NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL DEFAULT FALSE,
	error TEXT NOT NULL DEFAULT '',
	request_body TEXT NOT NULL DEFAULT '',
	response_body TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	redelivery_of_id BIGINT REFERENCES webhook_deliveries(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_hook ON webhook_deliveries(webhook_id, id DESC);

CREATE TABLE IF NOT EXISTS jobs (
	id BIGSERIAL PRIMARY KEY,
	job_type TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	dedupe_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'queued',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	last_error TEXT NOT NULL DEFAULT '',
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, next_attempt_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_dedupe
	ON jobs(dedupe_key) WHERE dedupe_key <> '' AND status IN ('queued', 'in_progress');
`
