package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// populateCmd loads the stock universe into storage
var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "종목 유니버스 적재",
	Long: `종목 리스트(CSV)를 읽어 식별 정보만 가진 레코드를 생성/갱신합니다.
--file 이 없으면 STOCK_LIST_FILE, 실패 시 내장 Nifty 50 목록을 사용합니다.

Example:
  go run ./cmd/stockfusion populate
  go run ./cmd/stockfusion populate --file data/EQUITY_L.csv`,
	RunE: runPopulate,
}

var populateFile string

func init() {
	rootCmd.AddCommand(populateCmd)
	populateCmd.Flags().StringVar(&populateFile, "file", "", "stock list CSV (NSE EQUITY_L format)")
}

func runPopulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{stockFile: populateFile})
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	printHeader(out, "Populate stock universe", "Source", a.stocks.Name(), "Storage", a.cfg.Storage)

	start := time.Now()
	res, err := a.enricher.PopulateFromProvider(ctx, a.stocks)
	if err != nil {
		return fmt.Errorf("populate: %w", err)
	}

	fmt.Fprintf(out, "  Inserted  : %d\n", res.Inserted)
	fmt.Fprintf(out, "  Updated   : %d\n", res.Updated)
	fmt.Fprintf(out, "  Failed    : %d\n", res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "    - %s\n", e)
	}
	printSuccess(out, "Populate completed in %.2fs", time.Since(start).Seconds())
	return nil
}
