package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/scheduler"
	"github.com/wonny/tradeops/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/ops scheduler start
  go run ./cmd/ops scheduler list
  go run ./cmd/ops scheduler run confirmation_deadline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- confirmation_deadline: 평일 13:55 UK (직전 TRADE 티켓 확인 여부)
- ops_run:               평일 14:00 UK (allocate → riskguard → ticket)
- artifacts_retention:   매일 03:30 UK (아티팩트 정리)

재시도 후에도 실패한 작업은 SCHEDULER_MISFIRE 알림을 남깁니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행 (완료까지 대기)",
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

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	PrintSuccess("Scheduler started successfully")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, err := newDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobName := args[0]

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunNow(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", jobName, result.Attempts, result.Error)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %-22s %s\n", jobName, stats[jobName].Schedule)
	}
}

func initScheduler(d *deps) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.DefaultConfig(), d.alerts, d.log)

	registered := []scheduler.Job{
		jobs.NewConfirmationDeadlineJob(d.reconciler(), d.cfg.Schedule.ConfirmationDeadline, d.log),
		jobs.NewOpsRunJob(d.orchestrator(), d.cfg.Schedule.OpsRun, d.runConfig(), d.log),
		jobs.NewRetentionJob(d.artifacts, d.retentionPolicy(), d.cfg.Schedule.Retention, d.log),
	}
	for _, job := range registered {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
