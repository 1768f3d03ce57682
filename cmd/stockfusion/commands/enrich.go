package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/stockfusion/internal/enrichment"
	"github.com/wonny/stockfusion/pkg/logger"
)

// enrichCmd runs one enrichment batch in the foreground
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "종목 데이터 보강 (멀티소스 융합 + 스코어링)",
	Long: `품질이 낮거나 오래된 레코드를 시가총액 순으로 골라 보강하고,
마지막에 전체 유니버스의 상대강도(RS)를 다시 계산합니다.
Ctrl+C 시 남은 종목은 skipped 로 처리되고 RS 는 실행되지 않습니다.

Example:
  go run ./cmd/stockfusion enrich --max 50
  go run ./cmd/stockfusion enrich --max 200 --workers 8
  go run ./cmd/stockfusion enrich --symbol TCS
  go run ./cmd/stockfusion enrich --prices --max 200`,
	RunE: runEnrich,
}

var (
	enrichMax     int
	enrichWorkers int
	enrichSymbol  string
	enrichPrices  bool
)

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().IntVar(&enrichMax, "max", 0, "max stocks (0 = ENRICH_BATCH_SIZE)")
	enrichCmd.Flags().IntVar(&enrichWorkers, "workers", 0, "worker count (0 = ENRICH_WORKERS)")
	enrichCmd.Flags().StringVar(&enrichSymbol, "symbol", "", "enrich a single symbol")
	enrichCmd.Flags().BoolVar(&enrichPrices, "prices", false, "refresh prices only (top --max by market cap)")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	// read by config.Load
	if enrichWorkers > 0 {
		os.Setenv("ENRICH_WORKERS", fmt.Sprint(enrichWorkers))
	}

	a, err := newApp(ctx, appOptions{
		progress: func(*logger.Logger) enrichment.ProgressSink { return &consoleProgress{w: out} },
	})
	if err != nil {
		return err
	}
	defer a.close()

	switch {
	case enrichSymbol != "":
		return enrichOne(ctx, cmd, a)
	case enrichPrices:
		return refreshPrices(ctx, cmd, a)
	}

	batchSize := enrichMax
	if batchSize <= 0 {
		batchSize = a.cfg.Enrichment.BatchSize
	}
	printHeader(out, "Enrich batch", "Max", fmt.Sprint(batchSize), "Workers", fmt.Sprint(a.cfg.Enrichment.Workers))

	res, err := a.enricher.EnrichBatch(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("enrich batch: %w", err)
	}

	fmt.Fprintln(out, singleLine)
	fmt.Fprintf(out, "  Run ID    : %s\n", res.RunID)
	fmt.Fprintf(out, "  Selected  : %d\n", res.Selected)
	fmt.Fprintf(out, "  Enriched  : %d\n", res.Enriched)
	fmt.Fprintf(out, "  Failed    : %d\n", res.Failed)
	fmt.Fprintf(out, "  Skipped   : %d\n", res.Skipped)
	fmt.Fprintf(out, "  RS ranked : %d\n", res.RelativeStrengthUpdated)
	for _, f := range res.Failures {
		fmt.Fprintf(out, "    - %s: %s\n", f.Symbol, f.Reason)
	}

	if ctx.Err() != nil {
		printWarning(out, "Interrupted after %s", res.Duration)
		return nil
	}
	printSuccess(out, "Enrichment completed in %s", res.Duration)
	return nil
}

func enrichOne(ctx context.Context, cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()
	rec, err := a.enricher.EnrichSymbol(ctx, enrichSymbol)
	if err != nil {
		return fmt.Errorf("enrich %s: %w", enrichSymbol, err)
	}
	printHeader(out, "Enriched "+rec.Symbol,
		"Quality", fmt.Sprint(rec.DataQualityScore),
		"Sources", rec.DataSources)
	return nil
}

func refreshPrices(ctx context.Context, cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()
	limit := enrichMax
	if limit <= 0 {
		limit = a.cfg.Enrichment.PriceBatchSize
	}

	res, err := a.enricher.RefreshPrices(ctx, limit)
	if err != nil {
		return fmt.Errorf("refresh prices: %w", err)
	}
	printSuccess(out, "Prices refreshed: %d updated, %d failed of %d", res.Updated, res.Failed, res.Selected)
	return nil
}
