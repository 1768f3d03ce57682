package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/stockfusion/internal/scheduler"
	"github.com/wonny/stockfusion/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/stockfusion scheduler start
  go run ./cmd/stockfusion scheduler run relative_strength`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `등록된 모든 작업을 스케줄하고 Ctrl+C 까지 실행합니다.

등록되는 작업 (SCHEDULE_* 로 변경, 빈 값이면 비활성):
- enrich_daily: 평일 18:00 (배치 보강 + RS)
- prices_intraday: 평일 9-15시 15분마다 (가격 갱신)
- populate_weekly: 일요일 06:00 (유니버스 재적재)
- relative_strength: 평일 18:30 (RS 재계산)`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// initScheduler wires the app and registers every configured job
func initScheduler(cmd *cobra.Command) (*app, *scheduler.Scheduler, error) {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(a.log)
	if err := jobs.RegisterAll(sched, a.enricher, a.stocks, a.cfg, a.log); err != nil {
		a.close()
		return nil, nil, fmt.Errorf("register jobs: %w", err)
	}
	return a, sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	sched.Start()
	printSuccess(out, "Scheduler started")
	printJobs(out, sched)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Fprintln(out, "\nShutting down scheduler...")
	sched.Stop()
	printStats(out, sched)
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	printJobs(cmd.OutOrStdout(), sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running job: %s\n", args[0])

	res, err := sched.RunJobAndWait(args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", res.JobName, res.Attempts, res.Error)
	}
	printSuccess(out, "Job %s completed in %s", res.JobName, res.Duration)
	return nil
}

func printJobs(w io.Writer, sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	fmt.Fprintln(w, "\nRegistered jobs:")
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "  - %-18s %-22s next %s\n", name, st.Schedule, next)
	}
}

func printStats(w io.Writer, sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nJob Statistics:")
	for _, name := range names {
		st := stats[name]
		if st.TotalRuns == 0 {
			continue
		}
		fmt.Fprintf(w, "📊 %s\n", name)
		fmt.Fprintf(w, "   Total Runs: %d\n", st.TotalRuns)
		fmt.Fprintf(w, "   Success: %d (%.1f%%)\n", st.SuccessCount, st.SuccessRate*100)
		fmt.Fprintf(w, "   Failures: %d\n", st.FailureCount)
		if st.LastRun != nil {
			fmt.Fprintf(w, "   Last Run: %s\n", st.LastRun.Format("2006-01-02 15:04:05"))
		}
	}
}
