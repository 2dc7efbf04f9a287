package archive

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Analyzer runs SQL over archived Parquet files using DuckDB.
type Analyzer struct {
	mu sync.RWMutex

	config *config.Config
	db     *sql.DB

	// Statistics
	stats AnalyzerStats
}

// AnalyzerStats holds analyzer statistics.
type AnalyzerStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Truncated       int64
	Errors          int64
}

// SQLResult is the result of an ad-hoc query.
type SQLResult struct {
	Columns   []string
	Rows      []map[string]interface{}
	Truncated bool
}

// NewAnalyzer opens an in-memory DuckDB database.
func NewAnalyzer(cfg *config.Config) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.Query.MemoryLimit != "" {
		_, err = db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.Query.MemoryLimit))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Analyzer{
		config: cfg,
		db:     db,
	}, nil
}

// Close closes the database.
func (a *Analyzer) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Pattern returns the read_parquet glob of one metric tier.
// An empty metric matches every metric.
func (a *Analyzer) Pattern(metric string, tier int) string {
	if metric == "" {
		metric = "*"
	}
	return filepath.Join(a.config.ArchiveDir(), metric, config.TierDirName(tier), "*.parquet")
}

// HasArchive reports whether any file matches the tier pattern.
func (a *Analyzer) HasArchive(metric string, tier int) bool {
	matches, err := filepath.Glob(a.Pattern(metric, tier))
	return err == nil && len(matches) > 0
}

// QueryMetric returns archived samples of a metric tier with timestamps in
// [from, to], oldest first.
func (a *Analyzer) QueryMetric(ctx context.Context, metric string, tier int, from, to time.Time) ([]types.Sample, error) {
	if !a.HasArchive(metric, tier) {
		return nil, nil
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT timestamp_ms, value, max
		FROM read_parquet($1)
		WHERE metric = $2
		  AND timestamp_ms >= $3
		  AND timestamp_ms <= $4
		ORDER BY timestamp_ms
		LIMIT $5
	`

	rows, err := a.db.QueryContext(ctx, query,
		a.Pattern(metric, tier),
		metric,
		from.UnixMilli(),
		to.UnixMilli(),
		a.maxRows(),
	)
	if err != nil {
		a.countError()
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var samples []types.Sample
	for rows.Next() {
		var s types.Sample
		if err := rows.Scan(&s.TimestampMs, &s.Value, &s.Max); err != nil {
			a.countError()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		a.countError()
		return nil, err
	}

	a.mu.Lock()
	a.stats.QueriesExecuted++
	a.stats.RowsReturned += int64(len(samples))
	a.mu.Unlock()

	return samples, nil
}

// ExecuteSQL executes a raw SQL query. Results stop at the configured row
// limit and the query is cancelled after the configured timeout.
func (a *Analyzer) ExecuteSQL(ctx context.Context, query string) (*SQLResult, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		a.countError()
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		a.countError()
		return nil, err
	}

	result := &SQLResult{Columns: columns}
	limit := a.maxRows()

	for rows.Next() {
		if len(result.Rows) >= limit {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			a.countError()
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		a.countError()
		return nil, err
	}

	a.mu.Lock()
	a.stats.QueriesExecuted++
	a.stats.RowsReturned += int64(len(result.Rows))
	if result.Truncated {
		a.stats.Truncated++
	}
	a.mu.Unlock()

	return result, nil
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.Query.Timeout > 0 {
		return context.WithTimeout(ctx, a.config.Query.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *Analyzer) maxRows() int {
	if a.config.Query.MaxRows > 0 {
		return a.config.Query.MaxRows
	}
	return config.DefaultConfig().Query.MaxRows
}

func (a *Analyzer) countError() {
	a.mu.Lock()
	a.stats.Errors++
	a.mu.Unlock()
}

// Stats returns analyzer statistics.
func (a *Analyzer) Stats() AnalyzerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}
