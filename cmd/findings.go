package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/export"
	"github.com/CosmoTheDev/scanboard/internal/findings"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	findingsSearch   string
	findingsSeverity string
	findingsOutput   string
	deleteYes        bool
	exportFile       string
	exportCompress   string
	exportFiltered   bool
)

var findingsCmd = &cobra.Command{
	Use:     "findings",
	Aliases: []string{"finding", "f"},
	Short:   "List, triage, delete and export findings",
}

var findingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List findings, optionally filtered",
	Long: `Lists findings from the backend.

Examples:
  scanboard findings list
  scanboard findings list --search cve --severity critical,high
  scanboard findings list --severity unknown --output json`,
	RunE: runFindingsList,
}

var findingsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one finding with its decoded template info",
	Args:  cobra.ExactArgs(1),
	RunE:  runFindingsShow,
}

var findingsTriageCmd = &cobra.Command{
	Use:   "triage <id> <false_positive|accepted_risk|fixed>",
	Short: "Move a finding to a triage state",
	Args:  cobra.ExactArgs(2),
	RunE:  runFindingsTriage,
}

var findingsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete findings (irreversible)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFindingsDelete,
}

var findingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download findings as CSV",
	Long: `Downloads the backend's CSV export. With --filtered, the CSV is built
locally from the findings matching --search and --severity instead.

Compression defaults to export.compression from the config file.`,
	RunE: runFindingsExport,
}

func init() {
	for _, c := range []*cobra.Command{findingsListCmd, findingsExportCmd} {
		c.Flags().StringVar(&findingsSearch, "search", "", "Case-insensitive match on name, template id or host")
		c.Flags().StringVar(&findingsSeverity, "severity", "", "Comma-separated severities (critical,high,medium,low,info,unknown)")
	}
	findingsListCmd.Flags().StringVarP(&findingsOutput, "output", "o", "table", "Output format: table|json|yaml")
	findingsShowCmd.Flags().StringVarP(&findingsOutput, "output", "o", "table", "Output format: table|json|yaml")
	findingsDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
	findingsExportCmd.Flags().StringVar(&exportFile, "file", "", "Output path (default: findings-<timestamp>.csv[.gz|.zst])")
	findingsExportCmd.Flags().StringVar(&exportCompress, "compress", "", "Compression: none|gzip|zstd")
	findingsExportCmd.Flags().BoolVar(&exportFiltered, "filtered", false, "Export only findings matching --search/--severity")

	findingsCmd.AddCommand(findingsListCmd, findingsShowCmd, findingsTriageCmd, findingsDeleteCmd, findingsExportCmd)
}

func loadStore(ctx context.Context, client *api.Client) (*findings.Store, error) {
	store := findings.NewStore(client)
	if err := store.Load(ctx); err != nil {
		return nil, actionError(err)
	}
	store.SetQuery(findingsSearch)
	store.SetSeverities(findings.ParseSeveritySet(findingsSeverity))
	return store, nil
}

func runFindingsList(cmd *cobra.Command, args []string) error {
	_, client, err := loadClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	store, err := loadStore(ctx, client)
	if err != nil {
		return err
	}
	visible := store.Visible()
	if done, err := printStructured(findingsOutput, visible); done {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tSTATE\tNAME\tHOST\tTEMPLATE\tLAST SEEN")
	for _, f := range visible {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, strings.ToUpper(string(f.SeverityLevel())), f.State.Label(),
			f.Name, f.Host, f.TemplateID, f.LastSeen.Local().Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	summary := fmt.Sprintf("%d of %d findings", len(visible), len(store.All()))
	if active := store.Severities(); len(active) < len(models.Severities) {
		names := make([]string, 0, len(active))
		for _, level := range active.Sorted() {
			names = append(names, string(level))
		}
		summary += " (severity: " + strings.Join(names, ", ") + ")"
	}
	fmt.Println(dimStyle.Render(summary))
	return nil
}

func runFindingsShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	_, client, err := loadClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	f, err := client.GetFinding(ctx, id)
	if errors.Is(err, api.ErrNotFound) {
		return fmt.Errorf("finding %d not found", id)
	}
	if err != nil {
		return actionError(err)
	}
	if done, err := printStructured(findingsOutput, f); done {
		return err
	}
	printFinding(f)
	return nil
}

func printFinding(f *models.Finding) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("#%d  %s", f.ID, f.Name)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Severity\t%s\n", strings.ToUpper(string(f.SeverityLevel())))
	fmt.Fprintf(w, "State\t%s\n", f.State.Label())
	fmt.Fprintf(w, "Host\t%s\n", f.Host)
	fmt.Fprintf(w, "Matched at\t%s\n", f.MatchedAt)
	fmt.Fprintf(w, "Template\t%s\n", f.TemplateID)
	fmt.Fprintf(w, "Fingerprint\t%s\n", f.Fingerprint)
	fmt.Fprintf(w, "First seen\t%s\n", f.FirstSeen.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "Last seen\t%s\n", f.LastSeen.Local().Format(time.RFC1123))
	if f.FixedAt != nil {
		fmt.Fprintf(w, "Fixed at\t%s\n", f.FixedAt.Local().Format(time.RFC1123))
	}
	_ = w.Flush()
	if f.Description != "" {
		fmt.Println()
		fmt.Println(f.Description)
	}
	fmt.Println()
	fmt.Println(dimStyle.Render("Template info:"))
	fmt.Println(f.PrettyInfo())
}

func runFindingsTriage(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	state, err := findings.ParseTriageTarget(args[1])
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
	store := findings.NewStore(client)
	if j != nil {
		store.WithJournal(j)
	}

	f, err := store.SetState(ctx, id, state)
	if err != nil {
		return actionError(err)
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Finding #%d is now %s", f.ID, f.State.Label())))
	return nil
}

func runFindingsDelete(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	if !deleteYes {
		confirmed := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %d finding(s)? This cannot be undone.", len(ids))).
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	j, closeJournal := optionalJournal(ctx, cfg)
	defer closeJournal()
	store := findings.NewStore(client)
	if j != nil {
		store.WithJournal(j)
	}

	failed := 0
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			failed++
			fmt.Println(warnStyle.Render(fmt.Sprintf("#%d: %s", id, api.UserMessage(err))))
			continue
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("#%d deleted", id)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletes failed", failed, len(ids))
	}
	return nil
}

func runFindingsExport(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	raw := exportCompress
	if !cmd.Flags().Changed("compress") {
		raw = cfg.Export.Compression
	}
	compression, err := export.ParseCompression(raw)
	if err != nil {
		return err
	}
	path := exportFile
	if path == "" {
		path = export.DefaultFilename(compression, time.Now())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if exportFiltered {
		store, err := loadStore(ctx, client)
		if err != nil {
			return err
		}
		visible := store.Visible()
		if err := export.FindingsToFile(path, compression, visible); err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Exported %d findings to %s", len(visible), path)))
		return nil
	}

	n, err := export.ServerToFile(ctx, client, path, compression)
	if err != nil {
		return actionError(err)
	}
	rows, err := export.CountRecords(path, compression)
	if err != nil {
		slog.Warn("could not read back export", "path", path, "error", err)
		fmt.Println(successStyle.Render(fmt.Sprintf("Exported %d bytes of CSV to %s", n, path)))
		return nil
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Exported %d findings (%d bytes) to %s", rows, n, path)))
	return nil
}
