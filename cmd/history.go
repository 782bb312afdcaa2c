package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the local journal of operator actions",
	Long: `Prints triage, delete, stop and launch actions taken from this machine,
newest first, with the backend's verdict on each.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum number of entries")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table|json|yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	j, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	actions, err := j.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if done, err := printStructured(historyOutput, actions); done {
		return err
	}
	if len(actions) == 0 {
		fmt.Println(dimStyle.Render("No actions recorded yet."))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTION\tSUBJECT\tDETAIL\tOUTCOME")
	for _, a := range actions {
		subject := ""
		switch {
		case a.FindingID != 0:
			subject = fmt.Sprintf("finding #%d", a.FindingID)
		case a.JobID != 0:
			subject = fmt.Sprintf("scan #%d", a.JobID)
		default:
			subject = a.Target
		}
		outcome := a.Outcome
		if a.Error != "" {
			outcome += ": " + a.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.CreatedAt, a.Kind, subject, a.State, outcome)
	}
	return w.Flush()
}
