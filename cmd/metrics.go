package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/cli"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [profile]",
	Short: "List the metrics a profile can be viewed by",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMetrics,
}

func init() {
	metricsCmd.Flags().StringVarP(&flagProfile, "profile", "p", "", "Profile id, name or file")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ref := flagProfile
	if len(args) == 1 {
		ref = args[0]
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	prof, err := resolveProfile(db, ref)
	if err != nil {
		return err
	}
	reg, err := db.Registry(prof.ID)
	if err != nil {
		return err
	}

	t := cli.Table{
		Title:   "Metrics for " + prof.Name,
		Headers: []string{"Name", "Unit", "Properties"},
	}
	for _, m := range reg.Metrics() {
		props := append(append([]string{}, m.UnaggregatableProperties...), m.AggregatableProperties...)
		t.Rows = append(t.Rows, []string{m.Name, m.Unit, strings.Join(props, ", ")})
	}
	fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
	return nil
}
