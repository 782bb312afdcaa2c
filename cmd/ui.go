package cmd

import (
	"context"
	"fmt"

	"github.com/CosmoTheDev/scanboard/internal/tui"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Opens the interactive terminal UI: live scan stats, findings triage,
scan launch and the template catalog. Logs go to ~/.scanboard/logs/ui.log.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, client, err := loadClient()
	if err != nil {
		return err
	}

	_, closeLog, err := setupFileLogger("ui", false)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer closeLog()

	j, closeJournal := optionalJournal(ctx, cfg)
	defer closeJournal()

	app := tui.NewApp(cfg, client, j)
	return app.Run()
}
