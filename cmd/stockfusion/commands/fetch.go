package commands

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wonny/stockfusion/internal/contracts"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch SYMBOL",
	Short: "단일 종목 라이브 멀티소스 조회",
	Long: `저장소를 거치지 않고 모든 소스에서 종목 데이터를 융합 조회하고
품질 리포트(점수, 누락 필드, 소스별 시도)를 출력합니다.

Example:
  go run ./cmd/stockfusion fetch TCS
  go run ./cmd/stockfusion fetch INFY --fields currentPrice,pe_ratio,roe`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var fetchFields string

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchFields, "fields", "", "comma-separated required fields (default: standard checklist)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	var required []string
	if fetchFields != "" {
		for _, f := range strings.Split(fetchFields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				required = append(required, f)
			}
		}
	}

	bag, report := a.fusion.FetchStockData(ctx, args[0], required)

	out := cmd.OutOrStdout()
	printHeader(out, "Fusion "+report.Symbol,
		"Quality", fmt.Sprint(report.Score),
		"Sources", strings.Join(report.SourcesUsed, ", "),
		"Cached", fmt.Sprint(report.Cached))

	for _, at := range report.FetchAttempts {
		fmt.Fprintf(out, "  %-14s q=%d missing=%d\n", at.Source, at.Quality, len(at.Missing))
	}
	if len(report.MissingFields) > 0 {
		fmt.Fprintf(out, "  Missing   : %s\n", strings.Join(report.MissingFields, ", "))
	}
	fmt.Fprintln(out, singleLine)

	printBag(cmd, bag)
	return nil
}

func printBag(cmd *cobra.Command, bag contracts.FieldBag) {
	keys := make([]string, 0, len(bag))
	for k := range bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%s\n", k, formatValue(bag[k]))
	}
	tw.Flush()
}
