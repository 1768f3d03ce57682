package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rsCmd = &cobra.Command{
	Use:   "rs",
	Short: "상대강도(RS) 백분위 재계산",
	Long: `1년 수익률 기준으로 전체 유니버스의 상대강도 백분위(0-100)를 다시 계산합니다.

Example:
  go run ./cmd/stockfusion rs`,
	RunE: runRelativeStrength,
}

func init() {
	rootCmd.AddCommand(rsCmd)
}

func runRelativeStrength(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	start := time.Now()
	n, err := a.enricher.RunRelativeStrength(ctx)
	if err != nil {
		return fmt.Errorf("relative strength: %w", err)
	}
	printSuccess(cmd.OutOrStdout(), "Relative strength updated for %d stocks in %.2fs", n, time.Since(start).Seconds())
	return nil
}
