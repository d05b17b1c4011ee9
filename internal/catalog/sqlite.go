package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/castlogic-core/internal/infrastructure/database"
	"github.com/nerrad567/castlogic-core/internal/phrase"
)

// SQLiteCatalog implements phrase.Catalog for one source of the
// media_items table.
type SQLiteCatalog struct {
	db     *sql.DB
	source string
}

// NewSQLiteCatalog creates a catalog over the items of source. db must be
// opened with database.Open, which registers the functions Query uses.
func NewSQLiteCatalog(db *sql.DB, source string) *SQLiteCatalog {
	return &SQLiteCatalog{db: db, source: source}
}

// Source returns the source this catalog serves.
func (c *SQLiteCatalog) Source() string {
	return c.source
}

// Query returns items whose title, subtitle or path contain q.Term and,
// when set, whose media type equals q.MediaType. The term matches without
// regard to case, non-ASCII letters included. Results are in the order
// items were added; a zero q.Limit returns every match.
func (c *SQLiteCatalog) Query(ctx context.Context, q phrase.Query) ([]phrase.CatalogItem, error) {
	var (
		where = []string{"source = ?"}
		args  = []any{c.source}
	)
	if term := strings.TrimSpace(q.Term); term != "" {
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		where = append(where, "("+foldedLike("title")+" OR "+foldedLike("subtitle")+" OR "+foldedLike("path")+")")
		args = append(args, pattern, pattern, pattern)
	}
	if mt := strings.TrimSpace(q.MediaType); mt != "" {
		where = append(where, "media_type = ? COLLATE NOCASE")
		args = append(args, mt)
	}

	query := `
		SELECT id, title, subtitle, path, media_type, runtime_ms,
			added_at, released_at, played, progress
		FROM media_items
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY added_at, id`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying media items: %w", err)
	}
	defer rows.Close()

	var items []phrase.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning media item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating media items: %w", err)
	}
	return items, nil
}

// Upsert stores items, replacing rows with the same ID.
func (c *SQLiteCatalog) Upsert(ctx context.Context, items ...phrase.CatalogItem) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO media_items (id, source, title, subtitle, path, media_type,
			runtime_ms, added_at, released_at, played, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			subtitle = excluded.subtitle,
			path = excluded.path,
			media_type = excluded.media_type,
			runtime_ms = excluded.runtime_ms,
			added_at = excluded.added_at,
			released_at = excluded.released_at,
			played = excluded.played,
			progress = excluded.progress`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		addedAt := it.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now()
		}
		var releasedAt sql.NullString
		if !it.ReleasedAt.IsZero() {
			releasedAt = sql.NullString{String: it.ReleasedAt.UTC().Format(time.RFC3339), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			it.ID, c.source, it.Title, it.Subtitle, it.Path, it.MediaType,
			it.Runtime.Milliseconds(), addedAt.UTC().Format(time.RFC3339), releasedAt,
			boolToInt(it.Played), it.Progress,
		); err != nil {
			return fmt.Errorf("storing media item %q: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing media items: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (phrase.CatalogItem, error) {
	var (
		it         phrase.CatalogItem
		runtimeMS  int64
		addedAt    string
		releasedAt sql.NullString
		played     int
	)
	if err := row.Scan(&it.ID, &it.Title, &it.Subtitle, &it.Path, &it.MediaType,
		&runtimeMS, &addedAt, &releasedAt, &played, &it.Progress); err != nil {
		return it, err
	}

	it.Runtime = time.Duration(runtimeMS) * time.Millisecond
	it.Played = played != 0

	var err error
	if it.AddedAt, err = time.Parse(time.RFC3339, addedAt); err != nil {
		return it, fmt.Errorf("parsing added_at: %w", err)
	}
	if releasedAt.Valid {
		if it.ReleasedAt, err = time.Parse(time.RFC3339, releasedAt.String); err != nil {
			return it, fmt.Errorf("parsing released_at: %w", err)
		}
	}
	return it, nil
}

// foldedLike matches column against a lowercased LIKE pattern.
func foldedLike(column string) string {
	return database.UnicodeLowerFunc + "(" + column + `) LIKE ? ESCAPE '\'`
}

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
