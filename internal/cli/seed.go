package cli

import (
	"fmt"

	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/spf13/cobra"
)

func newSeedCmd(e *env) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the phase catalog and the initial admin",
		Long:  "Inserts the phases and admin user from a YAML seed file. Existing rows are left untouched, so running it twice is safe.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = e.cfg.PhaseSeedFile
			}
			if err := database.Migrate(); err != nil {
				return err
			}
			seed, err := database.LoadSeed(file)
			if err != nil {
				return err
			}
			if err := seed.Apply(database.DB); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d phases\n", len(seed.Phases))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed file (default: PHASE_SEED_FILE)")
	return cmd
}
