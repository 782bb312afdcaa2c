package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/CosmoTheDev/scanboard/internal/metrics"
	"github.com/CosmoTheDev/scanboard/internal/schedule"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Launch scans on the cron schedules from the config file",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler in the foreground",
	Long: `Registers every enabled entry of "schedules" in the config file and
launches scans when they fire. Runs until interrupted.

Logs go to ~/.scanboard/logs/schedule.log. When metrics.addr is set, a
Prometheus endpoint is served at /metrics.`,
	RunE: runScheduleRun,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Validate and print configured schedules",
	RunE:  runScheduleList,
}

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd, scheduleListCmd)
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	logPath, closeLog, err := setupFileLogger("schedule", true)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	j, closeJournal := optionalJournal(ctx, cfg)
	defer closeJournal()

	s := schedule.New(client, j)
	if n := s.Load(cfg.Schedules); n == 0 {
		return fmt.Errorf("no valid enabled schedules in config (see 'scanboard schedule list')")
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()

	fmt.Println(headerStyle.Render("scanboard scheduler starting"))
	fmt.Printf("  Backend : %s\n", cfg.API.URL)
	fmt.Printf("  Logs    : %s\n", logPath)
	if cfg.Metrics.Addr != "" {
		fmt.Printf("  Metrics : http://%s/metrics\n", cfg.Metrics.Addr)
	}
	fmt.Println()
	printEntries(s.Entries())
	fmt.Println("Press Ctrl+C to stop.")

	s.Start()
	<-ctx.Done()
	slog.Info("scheduler shutting down")
	s.Stop()
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEXPR\tTARGET\tTYPE\tENABLED\tSTATUS")
	s := schedule.New(client, nil)
	for i, sc := range cfg.Schedules {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("schedule-%d", i+1)
			sc.Name = name
		}
		status := "ok"
		if err := s.Add(sc); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", name, sc.Expr, sc.Target, sc.Type, sc.Enabled, status)
	}
	return w.Flush()
}

func printEntries(entries []schedule.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tEXPR\tTARGET")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.Name, e.Expr, e.Target)
	}
	_ = w.Flush()
	fmt.Println()
}
