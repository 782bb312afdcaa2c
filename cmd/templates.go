package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/CosmoTheDev/scanboard/models"
	"github.com/spf13/cobra"
)

var (
	templatesSearch string
	templatesOutput string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Browse the backend's template catalog",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE:  runTemplatesList,
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Print a template's source",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesShow,
}

func init() {
	templatesListCmd.Flags().StringVar(&templatesSearch, "search", "", "Case-insensitive match on name or path")
	templatesListCmd.Flags().StringVarP(&templatesOutput, "output", "o", "table", "Output format: table|json|yaml")
	templatesCmd.AddCommand(templatesListCmd, templatesShowCmd)
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	_, client, err := loadClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	list, err := client.Templates(ctx)
	if err != nil {
		return actionError(err)
	}
	q := strings.ToLower(strings.TrimSpace(templatesSearch))
	out := make([]models.Template, 0, len(list))
	for _, t := range list {
		if q == "" || strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Path), q) {
			out = append(out, t)
		}
	}
	if done, err := printStructured(templatesOutput, out); done {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH")
	for _, t := range out {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d templates", len(out))))
	return nil
}

func runTemplatesShow(cmd *cobra.Command, args []string) error {
	_, client, err := loadClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	body, err := client.TemplateContent(ctx, args[0])
	if err != nil {
		return actionError(err)
	}
	fmt.Print(body)
	if !strings.HasSuffix(body, "\n") {
		fmt.Println()
	}
	return nil
}
