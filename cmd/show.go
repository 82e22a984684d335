package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/cli"
	"github.com/theirongolddev/flamekit/internal/client"
	"github.com/theirongolddev/flamekit/internal/daemon"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/pipeline"
)

var (
	flagProfile    string
	flagMetric     string
	flagView       string
	flagPivot      string
	flagShowStack  []string
	flagHideStack  []string
	flagShowFrom   []string
	flagHideFrame  []string
	flagWidth      float64
	flagColumns    int
	flagMinColumns int
	flagPlain      bool
	flagJSON       bool
	flagTop        int
	flagServer     string
	flagSession    string
)

var showCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Render a profile as a flame graph",
	Long: "Render a stored profile as a flame graph. The profile is an id, a name or a\n" +
		"profile file path; files that were never imported are imported first.",
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	addShowFlags(showCmd)
	rootCmd.AddCommand(showCmd)
}

func addShowFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&flagProfile, "profile", "p", "", "Profile id, name or file")
	f.StringVarP(&flagMetric, "metric", "m", "", "Metric name (default: config, then the profile's first)")
	f.StringVar(&flagView, "view", "", "top-down, bottom-up or pivot (default: config)")
	f.StringVar(&flagPivot, "pivot", "", "Pivot pattern; implies --view pivot")
	f.StringArrayVar(&flagShowStack, "show-stack", nil, "Keep only stacks through a matching frame (repeatable)")
	f.StringArrayVar(&flagHideStack, "hide-stack", nil, "Drop stacks through a matching frame (repeatable)")
	f.StringArrayVar(&flagShowFrom, "show-from", nil, "Start stacks at the first matching frame (repeatable)")
	f.StringArrayVar(&flagHideFrame, "hide-frame", nil, "Elide matching frames, keeping their weight (repeatable)")
	f.Float64Var(&flagWidth, "width", 0, "Layout span (default: config layout.width)")
	f.IntVar(&flagColumns, "columns", 0, "Text width (default: config, then terminal width)")
	f.IntVar(&flagMinColumns, "min-columns", 0, "Blank out frames narrower than this (default: config)")
	f.BoolVar(&flagPlain, "plain", false, "No colors")
	f.BoolVar(&flagJSON, "json", false, "Print the flame graph as JSON")
	f.IntVar(&flagTop, "top", 0, "Print the N frames with the most self value instead of the graph")
	f.StringVar(&flagServer, "server", "", "Compute on a running `flamekit serve` at this address")
	f.StringVar(&flagSession, "session", "", "Server session to compute in (with --server)")
}

func showFilters() (model.Filters, error) {
	kind := flagView
	if kind == "" {
		kind = cfg.General.DefaultView
		if flagPivot != "" {
			kind = string(model.ViewPivot)
		}
	}
	view, err := model.ParseView(kind, flagPivot)
	if err != nil {
		return model.Filters{}, err
	}
	return model.Filters{
		ShowStack:     flagShowStack,
		HideStack:     flagHideStack,
		ShowFromFrame: flagShowFrom,
		HideFrame:     flagHideFrame,
		View:          view,
	}, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	logger := loggerFromContext(cmd.Context())

	ref := flagProfile
	if len(args) == 1 {
		ref = args[0]
	}
	filters, err := showFilters()
	if err != nil {
		return err
	}

	var q *model.QueryData
	if flagServer != "" {
		q, err = computeRemote(cmd.Context(), ref, filters)
	} else {
		q, err = computeLocal(cmd.Context(), logger, ref, filters)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case flagJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	case flagTop > 0:
		fmt.Fprint(out, cli.RenderTable(topTable(q, flagTop)))
		return nil
	}

	fmt.Fprintln(out, cli.RenderSummary(q))
	fmt.Fprintln(out)
	fmt.Fprint(out, cli.RenderFlamegraph(q, cli.FlameOptions{
		Columns:    textColumns(),
		MinColumns: minColumns(),
		Plain:      flagPlain || !term.IsTerminal(os.Stdout.Fd()),
	}))
	return nil
}

func computeLocal(ctx context.Context, logger *log.Logger, ref string, filters model.Filters) (*model.QueryData, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	prof, err := resolveProfile(db, ref)
	if err != nil {
		return nil, err
	}
	reg, err := db.Registry(prof.ID)
	if err != nil {
		return nil, err
	}
	name := flagMetric
	if name == "" {
		name = cfg.General.DefaultMetric
		if _, err := reg.Lookup(name); err != nil {
			name = ""
		}
	}
	m, err := reg.LookupOrDefault(name)
	if err != nil {
		return nil, err
	}

	p := newProgress(logger)
	q, err := pipeline.Compute(ctx, db, m, filters, pipeline.Options{Width: layoutWidth(), Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("computing flame graph: %w", err)
	}
	p.done("Computed flame graph", "profile", prof.Name, "metric", m.Name, "nodes", len(q.Nodes))
	return q, nil
}

// computeRemote asks a running server for the flame graph. The server
// resolves ids only, so ref must be a profile id there.
func computeRemote(ctx context.Context, ref string, filters model.Filters) (*model.QueryData, error) {
	c := client.New(flagServer)
	if ref == "" {
		profiles, err := c.Profiles(ctx)
		if err != nil {
			return nil, err
		}
		if len(profiles) != 1 {
			return nil, fmt.Errorf("server stores %d profiles; pick one with --profile", len(profiles))
		}
		ref = profiles[0].ID
	}
	metricName := flagMetric
	if metricName == "" {
		metricName = cfg.General.DefaultMetric
	}
	resp, err := c.Flamegraph(ctx, daemon.FlamegraphRequest{
		Session: flagSession,
		Profile: ref,
		Metric:  metricName,
		Filters: filters,
	})
	if err != nil {
		return nil, err
	}
	loggerFromContext(ctx).Debug("server computed flame graph", "session", resp.Session, "generation", resp.Generation)
	return resp.Data, nil
}

func minColumns() int {
	if flagMinColumns > 0 {
		return flagMinColumns
	}
	return cfg.Layout.MinColumns
}

func layoutWidth() float64 {
	if flagWidth > 0 {
		return flagWidth
	}
	return cfg.Layout.Width
}

func topTable(q *model.QueryData, n int) cli.Table {
	t := cli.Table{
		Title:   fmt.Sprintf("Top %d frames by self %s", n, q.Metric),
		Headers: []string{"Frame", "Self", "Self share", "Total", "Total %"},
	}
	for _, ft := range cli.TopFrames(q, n) {
		t.Rows = append(t.Rows, []string{
			ft.Name,
			cli.FormatValue(ft.Self, q.Unit),
			cli.ShareBar(ft.Self, q.AllRootsCumulativeValue, 10),
			cli.FormatValue(ft.Total, q.Unit),
			cli.FormatShare(ft.Total, q.AllRootsCumulativeValue),
		})
	}
	return t
}

func textColumns() int {
	switch {
	case flagColumns > 0:
		return flagColumns
	case cfg.Layout.Columns > 0:
		return cfg.Layout.Columns
	}
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 100
}
