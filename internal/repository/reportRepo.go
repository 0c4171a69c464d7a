package repository

import (
	"context"
	"errors"
	"fmt"

	"go-linkrot/internal/model"
	"go-linkrot/internal/service"
	"go-linkrot/internal/store"

	"github.com/jackc/pgx/v5"
)

var _ service.ReportRepository = (*Repository)(nil)

type pageRow struct {
	ID  int32
	URL string
}

type pageValue struct {
	PageID int32
	Value  string
}

// SaveReport writes report for jobID in one transaction, replacing any
// report previously stored for the job.
func (r *Repository) SaveReport(ctx context.Context, jobID string, report *model.Report) error {
	pid, err := parseUUID(jobID)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM websites WHERE job_id = $1`, pid); err != nil {
		return fmt.Errorf("clear previous report: %w", err)
	}

	var websiteID int32
	err = tx.QueryRow(ctx, `
		INSERT INTO websites (job_id, url, total_visited_links, pages_queued, pages_crawled, cancelled, truncated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		pid, report.URL,
		int32(report.TotalVisitedLinks), int32(report.PagesQueued), int32(report.PagesCrawled),
		report.Cancelled, report.Truncated,
	).Scan(&websiteID)
	if err != nil {
		return fmt.Errorf("insert website: %w", err)
	}

	keywordIDs := make(map[string]int32, len(report.Keywords))
	keywordID := func(k string) (int32, error) {
		if id, ok := keywordIDs[k]; ok {
			return id, nil
		}
		var id int32
		err := tx.QueryRow(ctx, `
			INSERT INTO keywords (keyword) VALUES ($1)
			ON CONFLICT (keyword) DO UPDATE SET keyword = EXCLUDED.keyword
			RETURNING id`, k,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("upsert keyword %q: %w", k, err)
		}
		keywordIDs[k] = id
		return id, nil
	}

	for i, k := range report.Keywords {
		kid, err := keywordID(k)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO website_keywords (website_id, keyword_id, position)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			websiteID, kid, int32(i),
		); err != nil {
			return fmt.Errorf("link keyword %q: %w", k, err)
		}
	}

	batch := &pgx.Batch{}
	var broken [][]any
	for i, page := range report.Results {
		var pageID int32
		err := tx.QueryRow(ctx, `
			INSERT INTO crawled_pages (website_id, position, url)
			VALUES ($1, $2, $3) RETURNING id`,
			websiteID, int32(i), page.BaseURL,
		).Scan(&pageID)
		if err != nil {
			return fmt.Errorf("insert page %s: %w", page.BaseURL, err)
		}
		for _, k := range page.MatchedKeywords {
			kid, err := keywordID(k)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO crawled_page_keywords (page_id, keyword_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, pageID, kid)
		}
		for j, link := range page.BrokenLinks {
			broken = append(broken, []any{pageID, int32(j), link})
		}
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert page keywords: %w", err)
		}
	}
	if len(broken) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"broken_links"},
			[]string{"page_id", "position", "url"},
			pgx.CopyFromRows(broken),
		)
		if err != nil {
			return fmt.Errorf("copy broken links: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) GetReport(ctx context.Context, jobID string) (*model.Report, error) {
	pid, err := parseUUID(jobID)
	if err != nil {
		return nil, fmt.Errorf("report for job %s: %w", jobID, store.ErrNotFound)
	}

	var (
		websiteID                int32
		visited, queued, crawled int32
		report                   model.Report
	)
	err = r.pool.QueryRow(ctx, `
		SELECT id, url, total_visited_links, pages_queued, pages_crawled, cancelled, truncated
		FROM websites WHERE job_id = $1`, pid,
	).Scan(&websiteID, &report.URL, &visited, &queued, &crawled, &report.Cancelled, &report.Truncated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report for job %s: %w", jobID, store.ErrNotFound)
		}
		return nil, err
	}
	report.TotalVisitedLinks = int(visited)
	report.PagesQueued = int(queued)
	report.PagesCrawled = int(crawled)

	rows, err := r.pool.Query(ctx, `
		SELECT k.keyword FROM website_keywords wk
		JOIN keywords k ON k.id = wk.keyword_id
		WHERE wk.website_id = $1
		ORDER BY wk.position`, websiteID)
	if err != nil {
		return nil, err
	}
	report.Keywords, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, url FROM crawled_pages
		WHERE website_id = $1
		ORDER BY position`, websiteID)
	if err != nil {
		return nil, err
	}
	pages, err := pgx.CollectRows(rows, pgx.RowToStructByPos[pageRow])
	if err != nil {
		return nil, fmt.Errorf("read pages: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT cpk.page_id, k.keyword FROM crawled_page_keywords cpk
		JOIN crawled_pages cp ON cp.id = cpk.page_id
		JOIN keywords k ON k.id = cpk.keyword_id
		WHERE cp.website_id = $1
		ORDER BY cpk.page_id, k.keyword COLLATE "C"`, websiteID)
	if err != nil {
		return nil, err
	}
	matched, err := pgx.CollectRows(rows, pgx.RowToStructByPos[pageValue])
	if err != nil {
		return nil, fmt.Errorf("read page keywords: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT bl.page_id, bl.url FROM broken_links bl
		JOIN crawled_pages cp ON cp.id = bl.page_id
		WHERE cp.website_id = $1
		ORDER BY bl.page_id, bl.position`, websiteID)
	if err != nil {
		return nil, err
	}
	broken, err := pgx.CollectRows(rows, pgx.RowToStructByPos[pageValue])
	if err != nil {
		return nil, fmt.Errorf("read broken links: %w", err)
	}

	byPage := make(map[int32]*model.PageResult, len(pages))
	report.Results = make([]model.PageResult, len(pages))
	for i, p := range pages {
		report.Results[i] = model.PageResult{
			BaseURL:         p.URL,
			BrokenLinks:     []string{},
			MatchedKeywords: []string{},
		}
		byPage[p.ID] = &report.Results[i]
	}
	for _, m := range matched {
		if res, ok := byPage[m.PageID]; ok {
			res.MatchedKeywords = append(res.MatchedKeywords, m.Value)
		}
	}
	for _, b := range broken {
		if res, ok := byPage[b.PageID]; ok {
			res.BrokenLinks = append(res.BrokenLinks, b.Value)
		}
	}
	return &report, nil
}
