package stocklist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

const equityL = "SYMBOL,NAME OF COMPANY, SERIES, DATE OF LISTING, PAID UP VALUE, MARKET LOT, ISIN NUMBER, FACE VALUE\n" +
	"20MICRONS,20 Microns Limited,EQ,06-OCT-2008,5,1,INE144J01027,5\n" +
	"21STCENMGM,21st Century Management Services Limited,BE,03-MAY-1995,10,1,INE253B01015,10\n" +
	"ABCBOND,Some Bond,N1,01-JAN-2020,10,1,INE000000000,10\n" +
	"20MICRONS,Duplicate Row,EQ,06-OCT-2008,5,1,INE144J01027,5\n" +
	" ,Blank Symbol,EQ,06-OCT-2008,5,1,INE000000001,5\n"

func TestParse_EquityL(t *testing.T) {
	ids, err := Parse(strings.NewReader(equityL))
	require.NoError(t, err)

	assert.Equal(t, []contracts.StockIdentity{
		{Symbol: "20MICRONS", Name: "20 Microns Limited"},
		{Symbol: "21STCENMGM", Name: "21st Century Management Services Limited"},
	}, ids)
}

func TestParse_CuratedList(t *testing.T) {
	csv := "\ufeffnse_code,stock_name,sector_name,industry_name\n" +
		"tcs.ns,Tata Consultancy Services,IT,Software Services\n" +
		"INFY,,IT,\n"

	ids, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, ids, 2)

	assert.Equal(t, contracts.StockIdentity{Symbol: "TCS", Name: "Tata Consultancy Services", Sector: "IT", Industry: "Software Services"}, ids[0])
	assert.Equal(t, "INFY", ids[1].Name, "missing name falls back to the symbol")
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("Company,Price\nTCS,3500\n"))
	assert.ErrorIs(t, err, ErrNoSymbolColumn)

	ids, err := Parse(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCSVProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EQUITY_L.csv")
	require.NoError(t, os.WriteFile(path, []byte(equityL), 0o644))

	p := NewCSVProvider(path, logger.Nop())
	assert.Equal(t, "csv:EQUITY_L.csv", p.Name())

	ids, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = NewCSVProvider(filepath.Join(t.TempDir(), "missing.csv"), logger.Nop()).List(context.Background())
	assert.Error(t, err)
}

func TestNifty50(t *testing.T) {
	ids, err := Nifty50{}.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 50)

	bySymbol := map[string]contracts.StockIdentity{}
	for _, id := range ids {
		bySymbol[id.Symbol] = id
	}
	assert.Equal(t, "Energy", bySymbol["RELIANCE"].Sector)
	assert.Equal(t, "Mahindra & Mahindra Ltd.", bySymbol["M&M"].Name)
}

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }
func (failingProvider) List(ctx context.Context) ([]contracts.StockIdentity, error) {
	return nil, errors.New("boom")
}

type emptyProvider struct{}

func (emptyProvider) Name() string { return "empty" }
func (emptyProvider) List(ctx context.Context) ([]contracts.StockIdentity, error) {
	return nil, nil
}

func TestFallback(t *testing.T) {
	ctx := context.Background()

	f := NewFallback(logger.Nop(), failingProvider{}, emptyProvider{}, Nifty50{})
	assert.Equal(t, "broken>empty>nifty50", f.Name())

	ids, err := f.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 50)

	_, err = NewFallback(logger.Nop(), failingProvider{}, emptyProvider{}).List(ctx)
	assert.ErrorContains(t, err, "boom")

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewFallback(logger.Nop(), NewCSVProvider("/nonexistent", logger.Nop())).List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
