package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Repository persists crawl jobs and reports in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func New(ctx context.Context, connString string, log logrus.FieldLogger) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if log != nil {
		log.Info("Connected to database")
	}
	if err := RunSchema(ctx, pool, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run schema: %w", err)
	}
	return &Repository{
		pool: pool,
		log:  log,
	}, nil
}

// RunSchema executes schema SQL (e.g. CREATE TABLE). Safe to call multiple times if schema uses IF NOT EXISTS.
func RunSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// schemaSQL mirrors the crawl report: a website row per job with its
// keywords, the crawled pages in crawl order, and each page's matched
// keywords and broken links.
const schemaSQL = `CREATE TABLE IF NOT EXISTS jobs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    input JSONB NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    pages_crawled INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS websites (
    id SERIAL PRIMARY KEY,
    job_id UUID UNIQUE NOT NULL,
    url TEXT NOT NULL,
    total_visited_links INT NOT NULL DEFAULT 0,
    pages_queued INT NOT NULL DEFAULT 0,
    pages_crawled INT NOT NULL DEFAULT 0,
    cancelled BOOLEAN NOT NULL DEFAULT FALSE,
    truncated BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS keywords (
    id SERIAL PRIMARY KEY,
    keyword TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS website_keywords (
    website_id INT NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
    keyword_id INT NOT NULL REFERENCES keywords(id),
    position INT NOT NULL,
    PRIMARY KEY (website_id, keyword_id)
);

CREATE TABLE IF NOT EXISTS crawled_pages (
    id SERIAL PRIMARY KEY,
    website_id INT NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
    position INT NOT NULL,
    url TEXT NOT NULL,
    UNIQUE (website_id, position)
);

CREATE TABLE IF NOT EXISTS crawled_page_keywords (
    page_id INT NOT NULL REFERENCES crawled_pages(id) ON DELETE CASCADE,
    keyword_id INT NOT NULL REFERENCES keywords(id),
    PRIMARY KEY (page_id, keyword_id)
);

CREATE TABLE IF NOT EXISTS broken_links (
    page_id INT NOT NULL REFERENCES crawled_pages(id) ON DELETE CASCADE,
    position INT NOT NULL,
    url TEXT NOT NULL,
    PRIMARY KEY (page_id, position)
);`

func (r *Repository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}
