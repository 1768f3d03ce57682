package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "저장된 유니버스 통계",
	Long: `종목 수, 고품질 종목 수, 스크리닝 대상 수, 평균 품질, 상위 섹터를 출력합니다.
--field 를 주면 해당 수치 필드의 min/max/mean 도 함께 출력합니다.

Example:
  go run ./cmd/stockfusion stats
  go run ./cmd/stockfusion stats --field "ROE Annual %"`,
	RunE: runStats,
}

var statsField string

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsField, "field", "", "numeric field to summarize")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.engine.DatabaseStats(ctx)
	if err != nil {
		return fmt.Errorf("database stats: %w", err)
	}

	sectors := make([]string, 0, len(st.TopSectors))
	for _, s := range st.TopSectors {
		sectors = append(sectors, fmt.Sprintf("%s (%d)", s.Sector, s.Count))
	}

	out := cmd.OutOrStdout()
	printHeader(out, "Universe statistics",
		"Total", fmt.Sprint(st.TotalStocks),
		"High Q", fmt.Sprint(st.HighQualityStocks),
		"Eligible", fmt.Sprint(st.EligibleStocks),
		"Avg Q", fmt.Sprintf("%.1f", st.AvgQuality),
		"Updated", formatValue(st.LastUpdated))
	if len(sectors) > 0 {
		fmt.Fprintf(out, "  Sectors   : %s\n", strings.Join(sectors, ", "))
	}

	if statsField == "" {
		return nil
	}
	fs, err := a.engine.FieldStats(ctx, statsField)
	if err != nil {
		return fmt.Errorf("field stats: %w", err)
	}
	fmt.Fprintln(out, singleLine)
	fmt.Fprintf(out, "  %s (%s): count=%d min=%s max=%s mean=%s\n",
		fs.Field, fs.Column, fs.Count, formatValue(fs.Min), formatValue(fs.Max), formatValue(fs.Mean))
	return nil
}
