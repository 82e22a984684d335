package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/cli"
	"github.com/theirongolddev/flamekit/internal/pipeline"
)

var importCmd = &cobra.Command{
	Use:   "import [path...]",
	Short: "Import profile files or directories into the store",
	Long: "Import profile files or directories. Directories are imported incrementally:\n" +
		"unchanged files are skipped and profiles of deleted files are removed.\n" +
		"Without arguments the configured profiles directory is imported.",
	RunE: runImport,
}

var flagImportCheck bool

func init() {
	importCmd.Flags().BoolVar(&flagImportCheck, "check", false, "Parse directories and report what would be imported, without storing")
	rootCmd.AddCommand(importCmd)
}

// runImportCheck parses every profile under dirs and lists them.
func runImportCheck(cmd *cobra.Command, dirs []string) error {
	t := cli.Table{
		Title:   "Import check",
		Headers: []string{"Name", "Format", "Frames", "Source"},
	}
	var parseErrors, fileErrors int
	for _, dir := range dirs {
		res, err := pipeline.Load(dir, nil)
		if err != nil {
			return err
		}
		parseErrors += res.ParseErrors
		fileErrors += res.FileErrors
		for _, p := range res.Profiles {
			t.Rows = append(t.Rows, []string{p.Name, p.Format, cli.FormatNumber(int64(len(p.Frames))), p.SourcePath})
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
	if parseErrors > 0 || fileErrors > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.RenderWarning(
			fmt.Sprintf("%d bad lines, %d files could not be parsed", parseErrors, fileErrors)))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	logger := loggerFromContext(cmd.Context())
	if len(args) == 0 {
		if cfg.General.ProfilesDir == "" {
			return fmt.Errorf("no path given and general.profiles_dir is not set")
		}
		args = []string{cfg.General.ProfilesDir}
	}

	if flagImportCheck {
		return runImportCheck(cmd, args)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	total := pipeline.ImportResult{}
	p := newProgress(logger)
	for _, path := range args {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			id, parseErrors, err := pipeline.ImportFile(path, db)
			if err != nil {
				return err
			}
			logger.Debug("imported file", "path", path, "id", id)
			total.TotalFiles++
			total.Imported++
			total.ParseErrors += parseErrors
			continue
		}

		res, err := pipeline.LoadWithCache(path, db, func(current, n int) {
			if flagQuiet {
				return
			}
			fmt.Fprintf(os.Stderr, "\r  Importing %s", cli.RenderProgressBar(current, n, 30))
			if current == n {
				fmt.Fprintln(os.Stderr)
			}
		})
		if err != nil {
			return err
		}
		total.TotalFiles += res.TotalFiles
		total.Imported += res.Imported
		total.Unchanged += res.Unchanged
		total.Removed += res.Removed
		total.ParseErrors += res.ParseErrors
		total.FileErrors += res.FileErrors
	}
	p.done("Import finished", "files", total.TotalFiles)

	fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(cli.Table{
		Title:   "Import",
		Headers: []string{"Files", "Imported", "Unchanged", "Removed", "Bad lines", "Failed"},
		Rows: [][]string{{
			cli.FormatNumber(int64(total.TotalFiles)),
			cli.FormatNumber(int64(total.Imported)),
			cli.FormatNumber(int64(total.Unchanged)),
			cli.FormatNumber(int64(total.Removed)),
			cli.FormatNumber(int64(total.ParseErrors)),
			cli.FormatNumber(int64(total.FileErrors)),
		}},
	}))
	if total.FileErrors > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.RenderWarning(fmt.Sprintf("%d files could not be parsed", total.FileErrors)))
	}
	return nil
}
