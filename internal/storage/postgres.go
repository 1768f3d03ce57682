package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

// PostgresRepository stores stocks in one wide table
// ⭐ SSOT: stocks 테이블 읽기/쓰기는 여기서만
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresRepository creates a new repository
func NewPostgresRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: log.Module("storage.postgres"),
	}
}

// EnsureSchema creates the stocks table and indexes if missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL()); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpsertIdentity(ctx context.Context, id contracts.StockIdentity) (bool, error) {
	symbol := contracts.NormalizeSymbol(id.Symbol)
	if symbol == "" {
		return false, fmt.Errorf("empty symbol")
	}

	// xmax = 0 only for freshly inserted rows
	query := `
		INSERT INTO stocks (nse_code, stock_name, sector_name, industry_name)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (nse_code) DO UPDATE SET
			stock_name = COALESCE(NULLIF(EXCLUDED.stock_name, ''), stocks.stock_name),
			sector_name = COALESCE(EXCLUDED.sector_name, stocks.sector_name),
			industry_name = COALESCE(EXCLUDED.industry_name, stocks.industry_name)
		RETURNING (xmax = 0)`

	var inserted bool
	if err := r.pool.QueryRow(ctx, query, symbol, id.Name, id.Sector, id.Industry).Scan(&inserted); err != nil {
		return false, fmt.Errorf("failed to upsert %s: %w", symbol, err)
	}
	return inserted, nil
}

func (r *PostgresRepository) GetBySymbol(ctx context.Context, symbol string) (*contracts.StockRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM stocks WHERE nse_code = $1", selectColumns)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, contracts.NormalizeSymbol(symbol)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", symbol, err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListIdentities(ctx context.Context) ([]contracts.StockIdentity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT nse_code, stock_name, COALESCE(sector_name, ''), COALESCE(industry_name, '')
		FROM stocks
		ORDER BY nse_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var out []contracts.StockIdentity
	for rows.Next() {
		var id contracts.StockIdentity
		if err := rows.Scan(&id.Symbol, &id.Name, &id.Sector, &id.Industry); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SelectForEnrichment(ctx context.Context, c contracts.EnrichmentCriteria) ([]*contracts.StockRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stocks
		WHERE data_quality_score < $1 OR last_updated IS NULL OR last_updated < $2
		ORDER BY market_cap DESC NULLS LAST, nse_code ASC`, selectColumns)
	args := []interface{}{c.AcceptQuality, c.StaleBefore}
	if c.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, c.Limit)
	}
	return r.queryRecords(ctx, query, args...)
}

func (r *PostgresRepository) SelectTopByMarketCap(ctx context.Context, limit int) ([]*contracts.StockRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stocks
		WHERE data_quality_score > 0
		ORDER BY market_cap DESC NULLS LAST, nse_code ASC
		LIMIT $1`, selectColumns)
	return r.queryRecords(ctx, query, limit)
}

// ApplyEnrichment writes fields, scores and quality metadata in one UPDATE
func (r *PostgresRepository) ApplyEnrichment(ctx context.Context, u contracts.EnrichmentUpdate) error {
	metrics := numericOnly(u.Metrics)
	set, args := setClause(metrics, 1)

	n := len(args)
	meta := fmt.Sprintf("data_quality_score = $%d, data_sources = $%d, last_updated = $%d", n+1, n+2, n+3)
	args = append(args, u.QualityScore, strings.Join(u.Sources, ","), u.UpdatedAt)
	if set != "" {
		set += ", " + meta
	} else {
		set = meta
	}

	args = append(args, u.StockID)
	query := fmt.Sprintf("UPDATE stocks SET %s WHERE id = $%d", set, len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply enrichment for %s: %w", u.Symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("apply enrichment %s: %w", u.Symbol, contracts.ErrNotFound)
	}
	return nil
}

// UpdatePrices writes all price updates in one transaction
func (r *PostgresRepository) UpdatePrices(ctx context.Context, updates []contracts.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	queued := 0
	for _, u := range updates {
		set, args := setClause(numericOnly(u.Metrics), 1)
		if set == "" {
			continue
		}
		args = append(args, u.StockID)
		batch.Queue(fmt.Sprintf("UPDATE stocks SET %s WHERE id = $%d", set, len(args)), args...)
		queued++
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to update prices: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListOneYearReturns(ctx context.Context) ([]contracts.ReturnPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nse_code, year_1_change_pct, current_price, week_52_high, week_52_low
		FROM stocks
		WHERE year_1_change_pct IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list returns: %w", err)
	}
	defer rows.Close()

	var out []contracts.ReturnPoint
	for rows.Next() {
		var p contracts.ReturnPoint
		var price, high, low *float64
		if err := rows.Scan(&p.StockID, &p.Symbol, &p.Return, &price, &high, &low); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		p.Metrics = contracts.Metrics{}
		for col, v := range map[string]*float64{
			contracts.ColCurrentPrice: price,
			contracts.ColWeek52High:   high,
			contracts.ColWeek52Low:    low,
		} {
			if v != nil {
				p.Metrics[col] = *v
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveRelativeStrength writes every percentile and its momentum score in one transaction
func (r *PostgresRepository) SaveRelativeStrength(ctx context.Context, percentiles []contracts.Percentile) error {
	if len(percentiles) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range percentiles {
		batch.Queue("UPDATE stocks SET rel_strength_score = $1, momentum_score = $2 WHERE id = $3",
			float64(p.Value), float64(p.Momentum), p.StockID)
	}

	br := tx.SendBatch(ctx, batch)
	for range percentiles {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to save relative strength: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Query(ctx context.Context, q contracts.ScreenQuery) ([]*contracts.StockRecord, int, error) {
	where, args, err := buildWhere(q)
	if err != nil {
		return nil, 0, err
	}
	order, err := orderBy(q.SortColumn, q.SortDesc)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM stocks WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count matches: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM stocks WHERE %s %s", selectColumns, where, order)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	r.logger.WithFields(map[string]interface{}{
		"where": where,
		"order": order,
	}).Debug("Running screen query")

	results, err := r.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (r *PostgresRepository) CountEligible(ctx context.Context, minQuality int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM stocks WHERE data_quality_score >= $1", minQuality).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count eligible stocks: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) FieldStats(ctx context.Context, column string, minQuality int) (*contracts.FieldStats, error) {
	if !contracts.IsNumericColumn(column) {
		return nil, fmt.Errorf("field stats on non-numeric column %q", column)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(%[1]s), MIN(%[1]s), MAX(%[1]s), AVG(%[1]s)
		FROM stocks
		WHERE %[1]s IS NOT NULL AND data_quality_score >= $1`, column)

	var (
		count        int
		lo, hi, mean *float64
	)
	if err := r.pool.QueryRow(ctx, query, minQuality).Scan(&count, &lo, &hi, &mean); err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", column, err)
	}

	stats := &contracts.FieldStats{Column: column, Count: count}
	if lo != nil {
		stats.Min = *lo
	}
	if hi != nil {
		stats.Max = *hi
	}
	if mean != nil {
		stats.Mean = *mean
	}
	return stats, nil
}

func (r *PostgresRepository) Stats(ctx context.Context, minQuality, highQuality int) (*contracts.DatabaseStats, error) {
	stats := &contracts.DatabaseStats{}

	var avg *float64
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE data_quality_score >= $1),
			COUNT(*) FILTER (WHERE data_quality_score >= $2),
			AVG(data_quality_score) FILTER (WHERE data_quality_score > 0),
			MAX(last_updated)
		FROM stocks`, highQuality, minQuality,
	).Scan(&stats.TotalStocks, &stats.HighQualityStocks, &stats.EligibleStocks, &avg, &stats.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}
	if avg != nil {
		stats.AvgQuality = math.Round(*avg*10) / 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT sector_name, COUNT(*) AS count
		FROM stocks
		WHERE sector_name IS NOT NULL
		GROUP BY sector_name
		ORDER BY count DESC, sector_name ASC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sector counts: %w", err)
	}
	defer rows.Close()

	stats.TopSectors = []contracts.SectorCount{}
	for rows.Next() {
		var sc contracts.SectorCount
		if err := rows.Scan(&sc.Sector, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sector count: %w", err)
		}
		stats.TopSectors = append(stats.TopSectors, sc)
	}
	return stats, rows.Err()
}

func (r *PostgresRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*contracts.StockRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var out []*contracts.StockRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanRecord reads the selectColumns projection; NULL metrics stay out of Metrics
func scanRecord(row pgx.Row) (*contracts.StockRecord, error) {
	var (
		rec                       contracts.StockRecord
		sector, industry, sources *string
		lastUpdated               *time.Time
	)
	values := make([]*float64, len(contracts.MetricColumns))

	dest := []interface{}{
		&rec.ID, &rec.Symbol, &rec.Name, &sector, &industry, &sources, &rec.DataQualityScore, &lastUpdated,
	}
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec.Metrics = make(contracts.Metrics, len(values))
	for i, v := range values {
		if v != nil {
			rec.Metrics[contracts.MetricColumns[i]] = *v
		}
	}
	if sector != nil {
		rec.Sector = *sector
	}
	if industry != nil {
		rec.Industry = *industry
	}
	if sources != nil {
		rec.DataSources = *sources
	}
	rec.LastUpdated = lastUpdated
	return &rec, nil
}

var _ contracts.StockRepository = (*PostgresRepository)(nil)
