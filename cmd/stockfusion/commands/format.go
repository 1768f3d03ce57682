package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wonny/stockfusion/internal/enrichment"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleLine = "═══════════════════════════════════════════════════════════"
	singleLine = "───────────────────────────────────────────────────────────"
)

// printHeader prints a boxed command title with key/value lines
func printHeader(w io.Writer, title string, kv ...string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(w, "  %-10s: %s\n", kv[i], kv[i+1])
	}
	if len(kv) > 0 {
		fmt.Fprintln(w, singleLine)
	}
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "✅ "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "⚠️  "+format+"\n", args...)
}

// formatValue renders metric values compactly (crore for large rupee amounts)
func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		switch {
		case x >= 1e7 || x <= -1e7:
			return fmt.Sprintf("%.0f Cr", x/1e7)
		case x == float64(int64(x)):
			return fmt.Sprintf("%d", int64(x))
		default:
			return fmt.Sprintf("%.2f", x)
		}
	case []string:
		return strings.Join(x, ",")
	case time.Time:
		return x.Format("2006-01-02 15:04")
	case *time.Time:
		if x == nil {
			return "-"
		}
		return x.Format("2006-01-02 15:04")
	default:
		return fmt.Sprint(x)
	}
}

// consoleProgress prints enrichment progress lines
// Example: [enrich] TCS enriched q=92 [3/20]
type consoleProgress struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *consoleProgress) Publish(e enrichment.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Status == enrichment.StatusDone {
		fmt.Fprintf(p.w, "[%s] run %s done [%d/%d]\n", e.Kind, e.RunID, e.Processed, e.Total)
		return
	}

	line := fmt.Sprintf("[%s] %-12s %-8s", e.Kind, e.Symbol, e.Status)
	if e.Status == enrichment.StatusEnriched {
		line += fmt.Sprintf(" q=%d", e.Quality)
	}
	if e.Reason != "" {
		line += " (" + e.Reason + ")"
	}
	fmt.Fprintf(p.w, "%s [%d/%d]\n", line, e.Processed, e.Total)
}
