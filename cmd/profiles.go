package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/cli"
	"github.com/theirongolddev/flamekit/internal/store"
)

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"ls"},
	Short:   "List stored profiles",
	Args:    cobra.NoArgs,
	RunE:    runProfiles,
}

var profilesRmCmd = &cobra.Command{
	Use:   "rm <profile>...",
	Short: "Remove stored profiles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProfilesRm,
}

func init() {
	profilesCmd.AddCommand(profilesRmCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	profiles, err := db.ListProfiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  No profiles stored. Run `flamekit import <path>`.")
		return nil
	}

	t := cli.Table{
		Title:   fmt.Sprintf("Profiles (%d)", len(profiles)),
		Headers: []string{"ID", "Name", "Format", "Frames", "Imported"},
	}
	for _, p := range profiles {
		t.Rows = append(t.Rows, []string{
			p.ID[:min(8, len(p.ID))],
			p.Name,
			p.Format,
			cli.FormatNumber(int64(p.FrameCount)),
			p.ImportedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
	return nil
}

func runProfilesRm(cmd *cobra.Command, args []string) error {
	logger := loggerFromContext(cmd.Context())
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, ref := range args {
		p, err := lookupStored(db, ref)
		if err != nil {
			return err
		}
		if err := db.DeleteProfile(p); err != nil {
			return err
		}
		logger.Info("removed profile", "id", p)
	}
	return nil
}

// lookupStored resolves ref against stored profiles only, accepting an id
// prefix as printed by `flamekit profiles`.
func lookupStored(db *store.DB, ref string) (string, error) {
	profiles, err := db.ListProfiles()
	if err != nil {
		return "", err
	}
	var hits []string
	for _, p := range profiles {
		if p.ID == ref {
			return p.ID, nil
		}
		if p.Name == ref || (len(ref) >= 4 && len(p.ID) >= len(ref) && p.ID[:len(ref)] == ref) {
			hits = append(hits, p.ID)
		}
	}
	switch len(hits) {
	case 0:
		return "", fmt.Errorf("%w: %q", store.ErrProfileNotFound, ref)
	case 1:
		return hits[0], nil
	default:
		return "", fmt.Errorf("%q matches %d profiles; use the full id", ref, len(hits))
	}
}
