package stocklist

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

// ErrNoSymbolColumn is returned for a CSV without a recognizable symbol header
var ErrNoSymbolColumn = errors.New("stock list has no symbol column")

//go:embed nifty50.csv
var nifty50CSV []byte

// Header aliases, upper-cased. EQUITY_L.csv uses "SYMBOL", "NAME OF COMPANY", " SERIES".
var (
	symbolHeaders   = []string{"SYMBOL", "NSE CODE", "NSE_CODE"}
	nameHeaders     = []string{"NAME OF COMPANY", "NAME", "STOCK NAME", "STOCK_NAME", "COMPANY NAME"}
	sectorHeaders   = []string{"SECTOR", "SECTOR NAME", "SECTOR_NAME"}
	industryHeaders = []string{"INDUSTRY", "INDUSTRY NAME", "INDUSTRY_NAME"}
	seriesHeaders   = []string{"SERIES"}
)

// EquitySeries are the NSE series kept when a SERIES column is present
var EquitySeries = []string{"EQ", "BE"}

// Parse reads a stock list CSV. The first row must be a header.
// Blank and duplicate symbols are skipped (first occurrence wins).
func Parse(r io.Reader) ([]contracts.StockIdentity, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := indexHeader(header)
	symbolCol := lookup(cols, symbolHeaders)
	if symbolCol < 0 {
		return nil, ErrNoSymbolColumn
	}
	nameCol := lookup(cols, nameHeaders)
	sectorCol := lookup(cols, sectorHeaders)
	industryCol := lookup(cols, industryHeaders)
	seriesCol := lookup(cols, seriesHeaders)

	keepSeries := map[string]bool{}
	for _, s := range EquitySeries {
		keepSeries[s] = true
	}

	var out []contracts.StockIdentity
	seen := map[string]bool{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		symbol := contracts.NormalizeSymbol(field(record, symbolCol))
		if symbol == "" || seen[symbol] {
			continue
		}
		if seriesCol >= 0 && !keepSeries[strings.ToUpper(field(record, seriesCol))] {
			continue
		}
		seen[symbol] = true

		name := field(record, nameCol)
		if name == "" {
			name = symbol
		}
		out = append(out, contracts.StockIdentity{
			Symbol:   symbol,
			Name:     name,
			Sector:   field(record, sectorCol),
			Industry: field(record, industryCol),
		})
	}
	return out, nil
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func lookup(cols map[string]int, aliases []string) int {
	for _, a := range aliases {
		if i, ok := cols[a]; ok {
			return i
		}
	}
	return -1
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// CSVProvider reads the universe from a CSV file on disk
type CSVProvider struct {
	path   string
	logger *logger.Logger
}

// NewCSVProvider creates a provider for path
func NewCSVProvider(path string, log *logger.Logger) *CSVProvider {
	return &CSVProvider{
		path:   path,
		logger: log.Module("stocklist"),
	}
}

func (p *CSVProvider) Name() string {
	return "csv:" + filepath.Base(p.path)
}

// List parses the file. ctx is checked once before reading.
func (p *CSVProvider) List(ctx context.Context) ([]contracts.StockIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open stock list: %w", err)
	}
	defer f.Close()

	ids, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.path, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"path":  p.path,
		"count": len(ids),
	}).Debug("Parsed stock list")
	return ids, nil
}

// Nifty50 is the built-in universe used when no list file is available
type Nifty50 struct{}

func (Nifty50) Name() string { return "nifty50" }

func (Nifty50) List(ctx context.Context) ([]contracts.StockIdentity, error) {
	return Parse(bytes.NewReader(nifty50CSV))
}

// Fallback returns the first non-empty list among its providers
type Fallback struct {
	providers []contracts.StockListProvider
	logger    *logger.Logger
}

// NewFallback chains providers in priority order
func NewFallback(log *logger.Logger, providers ...contracts.StockListProvider) *Fallback {
	return &Fallback{
		providers: providers,
		logger:    log.Module("stocklist"),
	}
}

func (f *Fallback) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

func (f *Fallback) List(ctx context.Context) ([]contracts.StockIdentity, error) {
	var errs []error
	for _, p := range f.providers {
		ids, err := p.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.WithError(err).WithField("provider", p.Name()).Warn("Stock list provider failed, trying next")
			errs = append(errs, err)
			continue
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}
