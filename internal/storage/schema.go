package storage

import (
	"fmt"
	"strings"

	"github.com/wonny/stockfusion/internal/contracts"
)

// schemaSQL creates the stocks table. Every metric column is a nullable DOUBLE PRECISION.
func schemaSQL() string {
	var b strings.Builder
	b.WriteString(`CREATE TABLE IF NOT EXISTS stocks (
	id                 BIGSERIAL PRIMARY KEY,
	nse_code           TEXT NOT NULL UNIQUE,
	stock_name         TEXT NOT NULL DEFAULT '',
	sector_name        TEXT,
	industry_name      TEXT,
	data_sources       TEXT,
	data_quality_score INTEGER NOT NULL DEFAULT 0 CHECK (data_quality_score BETWEEN 0 AND 100),
	last_updated       TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()`)
	for _, col := range contracts.MetricColumns {
		fmt.Fprintf(&b, ",\n\t%s DOUBLE PRECISION", col)
	}
	b.WriteString("\n);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_stocks_quality ON stocks (data_quality_score);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_stocks_market_cap ON stocks (market_cap DESC NULLS LAST);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_stocks_sector ON stocks (sector_name);\n")
	return b.String()
}

// selectColumns is the fixed projection scanned by scanRecord
var selectColumns = "id, nse_code, stock_name, sector_name, industry_name, data_sources, data_quality_score, last_updated, " +
	strings.Join(contracts.MetricColumns, ", ")
