package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/launcher"
	"github.com/CosmoTheDev/scanboard/internal/metrics"
	"github.com/CosmoTheDev/scanboard/internal/monitor"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	scanTarget      string
	scanType        string
	scanTemplates   []string
	scanInteractive bool
	watchInterval   time.Duration
	watchOnce       bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Launch, stop and watch scans",
}

var scanLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start a scan on the backend",
	Long: `Submits a scan request. The backend runs it asynchronously; follow it
with 'scanboard scan watch' or the dashboard in 'scanboard ui'.

Examples:
  scanboard scan launch --target example.com
  scanboard scan launch --target example.com --type full
  scanboard scan launch --target example.com --type custom --templates cves,exposures
  scanboard scan launch -i`,
	RunE: runScanLaunch,
}

var scanStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Request cancellation of a running scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanStop,
}

var scanWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll and print scan status until interrupted",
	RunE:  runScanWatch,
}

func init() {
	scanLaunchCmd.Flags().StringVar(&scanTarget, "target", "", "Host or URL to scan")
	scanLaunchCmd.Flags().StringVar(&scanType, "type", "fast", "Scan profile: fast|full|custom")
	scanLaunchCmd.Flags().StringSliceVar(&scanTemplates, "templates", nil, "Comma-separated template ids, tags or paths")
	scanLaunchCmd.Flags().BoolVarP(&scanInteractive, "interactive", "i", false, "Fill in the request with a form")

	scanWatchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default: monitor.poll_interval)")
	scanWatchCmd.Flags().BoolVar(&watchOnce, "once", false, "Print a single snapshot and exit")

	scanCmd.AddCommand(scanLaunchCmd, scanStopCmd, scanWatchCmd)
}

func runScanLaunch(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	typ, ok := models.ParseScanType(scanType)
	if !ok {
		return fmt.Errorf("invalid scan type %q (valid: fast, full, custom)", scanType)
	}

	ctx, cancel := requestContext()
	defer cancel()
	j, closeJournal := optionalJournal(ctx, cfg)
	defer closeJournal()

	l := launcher.New(client)
	if j != nil {
		l.WithJournal(j)
	}
	l.Target = scanTarget
	l.Type = typ
	l.Templates = strings.Join(scanTemplates, ",")

	if scanInteractive {
		if err := launchForm(l); err != nil {
			return err
		}
	}

	if err := l.Submit(ctx); err != nil {
		if errors.Is(err, launcher.ErrTargetRequired) {
			return fmt.Errorf("--target is required")
		}
		return actionError(err)
	}
	fmt.Println(successStyle.Render(l.Confirmation))
	return nil
}

func launchForm(l *launcher.Launcher) error {
	typ := string(l.Type)
	options := make([]huh.Option[string], 0, len(models.ScanTypes))
	for _, t := range models.ScanTypes {
		options = append(options, huh.NewOption(string(t), string(t)))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target").
				Description("Host or URL to scan").
				Placeholder("example.com").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return launcher.ErrTargetRequired
					}
					return nil
				}).
				Value(&l.Target),
			huh.NewSelect[string]().
				Title("Profile").
				Options(options...).
				Value(&typ),
			huh.NewInput().
				Title("Templates").
				Description("Comma-separated template ids or tags (used by the custom profile)").
				Value(&l.Templates),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	l.Type = models.ScanType(typ)
	return nil
}

func runScanStop(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	j, closeJournal := optionalJournal(ctx, cfg)
	defer closeJournal()

	m := monitor.New(client, cfg.Monitor.PollInterval)
	if j != nil {
		m.WithJournal(j)
	}
	// One poll so a job already known to be finished is refused locally.
	m.Poll(ctx)
	if err := m.Stop(ctx, id); err != nil {
		if errors.Is(err, monitor.ErrNotStoppable) {
			return err
		}
		return actionError(err)
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Stop requested for scan #%d. The next poll shows its status.", id)))
	return nil
}

func runScanWatch(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	interval := watchInterval
	if interval <= 0 {
		interval = cfg.Monitor.PollInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render("metrics endpoint: "+err.Error()))
		}
	}()

	m := monitor.New(client, interval)
	if watchOnce {
		m.Poll(ctx)
		snap := m.Snapshot()
		if snap.Err != nil {
			return actionError(snap.Err)
		}
		printSnapshot(snap)
		return nil
	}

	updates := m.Subscribe()
	go func() { _ = m.Run(ctx) }()
	for snap := range updates {
		printSnapshot(snap)
	}
	return nil
}

func printSnapshot(snap monitor.Snapshot) {
	ts := time.Now().Format("15:04:05")
	if snap.Err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("[%s] poll failed: %s", ts, actionError(snap.Err))))
		if snap.Stats == nil {
			return
		}
	}
	s := snap.Stats
	change := ""
	if s.VulnerabilityChange != "" {
		change = fmt.Sprintf(" (%s, %s)", s.VulnerabilityChange, s.VulnerabilityTrend)
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("[%s] %d findings%s  %d active scans  %d critical",
		ts, s.TotalVulnerabilities, change, s.ActiveScans, s.CriticalIssues)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tTYPE\tSTATUS\tSTARTED")
	for _, j := range s.RecentScans {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", j.ID, j.Target, j.Type, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
	fmt.Println()
}
