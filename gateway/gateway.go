// Package gateway executes caller-supplied SQL against a read-only
// handle on the factory database, guarded by a restrictive safety
// policy. Every failure mode short of an infrastructure fault is
// reported as data rather than as an error, because the consumer is an
// LLM agent that needs a textual payload to reason about.
package gateway

import (
	"context"
	"database/sql"
	"log/slog"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200

	defaultSearchTopK = 5
	maxSearchTopK     = 20

	// snippetLength is how much of a procedure's content the search
	// projects as its snippet.
	snippetLength = 160
)

const searchSOPQuery = `
SELECT id, title, area, substr(content, 1, 160) AS snippet
FROM sop
WHERE title LIKE :q OR content LIKE :q
ORDER BY id DESC
LIMIT :k`

// Row is a single result row keyed by the query's column labels.
type Row = map[string]any

// Gateway runs validated queries against a read-only database handle.
type Gateway struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New creates a gateway over the given handle. The handle must be
// opened read-only; the gateway never checks, it relies on the policy
// plus the read-only connection as defense in depth.
func New(db *sql.DB, opts ...Option) *Gateway {
	g := &Gateway{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RunQuery validates query, executes it with the given named params and
// returns at most limit rows in the engine's result order. A limit
// outside [1, 200] is silently replaced by 50. Policy rejections and
// execution faults come back as a single-element error payload, never
// as a returned error.
func (g *Gateway) RunQuery(ctx context.Context, query string, params map[string]any, limit int) []Row {
	if limit < 1 || limit > maxQueryLimit {
		limit = defaultQueryLimit
	}

	if !IsSafeSelect(query) {
		g.logger.Warn("query blocked by safety policy", "query", query)
		return []Row{{"error": BlockedQueryMessage}}
	}

	args := make([]any, 0, len(params))
	for name, value := range params {
		args = append(args, sql.Named(name, value))
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errorPayload(err)
	}
	defer rows.Close()

	out, err := collectRows(rows, limit)
	if err != nil {
		return errorPayload(err)
	}
	return out
}

// SearchSOP substring-matches text against SOP titles and contents and
// returns up to topK procedures, most recently inserted first. Each hit
// carries id, title, area and a fixed-length content snippet. A topK
// outside [1, 20] is silently replaced by 5.
func (g *Gateway) SearchSOP(ctx context.Context, text string, topK int) []Row {
	if topK < 1 || topK > maxSearchTopK {
		topK = defaultSearchTopK
	}

	rows, err := g.db.QueryContext(ctx, searchSOPQuery,
		sql.Named("q", "%"+text+"%"),
		sql.Named("k", topK),
	)
	if err != nil {
		return errorPayload(err)
	}
	defer rows.Close()

	out, err := collectRows(rows, topK)
	if err != nil {
		return errorPayload(err)
	}
	return out
}

// errorPayload converts an execution fault into the error-as-data shape
// the tool contract promises.
func errorPayload(err error) []Row {
	msg := err.Error()
	return []Row{{"error": msg, "text": msg}}
}

// collectRows fetches at most limit rows as column-label keyed maps.
func collectRows(rows *sql.Rows, limit int) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, limit)
	for len(out) < limit && rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeValue makes driver values JSON-friendly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
