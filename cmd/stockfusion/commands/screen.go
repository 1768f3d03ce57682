package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/screening"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "스크리너 실행 (프리셋 또는 커스텀 필터)",
	Long: `저장된 종목을 프리셋 또는 JSON 필터로 스크리닝합니다.
--filter 는 JSON 문자열 또는 @파일경로 를 받습니다.

Example:
  go run ./cmd/stockfusion screen --list
  go run ./cmd/stockfusion screen --preset value --limit 20
  go run ./cmd/stockfusion screen --filter '{"filters":[{"field":"ROE Annual %","operator":"gt","value":20}]}'
  go run ./cmd/stockfusion screen --filter @filters/high_roe.json --json`,
	RunE: runScreen,
}

var (
	screenPreset string
	screenFilter string
	screenLimit  int
	screenJSON   bool
	screenList   bool
)

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVar(&screenPreset, "preset", "", "preset key (value, growth, momentum, ...)")
	screenCmd.Flags().StringVar(&screenFilter, "filter", "", "filter specification JSON or @file")
	screenCmd.Flags().IntVar(&screenLimit, "limit", 0, "max results (0 = SCREEN_DEFAULT_LIMIT)")
	screenCmd.Flags().BoolVar(&screenJSON, "json", false, "print the raw JSON result")
	screenCmd.Flags().BoolVar(&screenList, "list", false, "list presets and exit")
	screenCmd.MarkFlagsMutuallyExclusive("preset", "filter", "list")
}

func runScreen(cmd *cobra.Command, args []string) error {
	if screenPreset == "" && screenFilter == "" && !screenList {
		return errors.New("one of --preset, --filter or --list is required")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if screenList {
		printPresets(out, a.engine.Presets())
		return nil
	}

	var res *screening.Result
	if screenPreset != "" {
		res, err = a.engine.ApplyPreset(ctx, screenPreset, screenLimit)
	} else {
		var spec screening.FilterSpec
		spec, err = parseFilter(screenFilter)
		if err != nil {
			return err
		}
		if screenLimit > 0 {
			spec.Limit = screenLimit
		}
		res, err = a.engine.ApplyFilters(ctx, spec)
	}
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}

	if screenJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res)
	return nil
}

// parseFilter reads a FilterSpec from inline JSON or @path
func parseFilter(arg string) (screening.FilterSpec, error) {
	var spec screening.FilterSpec

	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return spec, fmt.Errorf("read filter file: %w", err)
		}
		data = b
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("parse filter: %w", err)
	}
	return spec, nil
}

func printPresets(w io.Writer, presets []screening.PresetInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tFILTERS\tDESCRIPTION")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Key, p.Name, len(p.Filters), p.Description)
	}
	tw.Flush()
}

// resultColumns are shown for every screen; everything else needs --json
var resultColumns = []string{
	contracts.ColMarketCap, contracts.ColPE, contracts.ColROE,
	contracts.ColDurabilityScore, contracts.ColValuationScore, contracts.ColMomentumScore,
}

func printResult(w io.Writer, res *screening.Result) {
	title := "Custom screen"
	if res.Metadata.PresetName != "" {
		title = res.Metadata.PresetName
	}
	printHeader(w, title,
		"Matches", fmt.Sprintf("%d of %d (%s)", res.Metadata.TotalMatches, res.Metadata.TotalStocks, res.Metadata.MatchRate),
		"Logic", fmt.Sprintf("%s, %d filters", res.Metadata.Logic, res.Metadata.FiltersApplied))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"SYMBOL", "Q"}
	for _, col := range resultColumns {
		header = append(header, screening.DisplayName(col))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, rec := range res.Records {
		cells := []string{rec.Symbol, fmt.Sprint(rec.DataQualityScore)}
		for _, col := range resultColumns {
			if v, ok := rec.Metrics[col]; ok {
				cells = append(cells, formatValue(v))
			} else {
				cells = append(cells, "-")
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()
}
