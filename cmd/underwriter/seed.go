package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/seed"
)

func newSeedCmd(app *cli) *cobra.Command {
	var packPath, tenantID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a rule pack into the configured repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			pack := seed.Default()
			if packPath != "" {
				var err error
				if pack, err = seed.LoadFile(packPath); err != nil {
					return err
				}
			}

			repo, err := repository.New(app.cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			summary, err := seed.Apply(cmd.Context(), repo, tenantID, pack)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
		},
	}

	cmd.Flags().StringVar(&packPath, "pack", "", "rule pack YAML (default: built-in pack)")
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "default", "tenant to seed")
	return cmd
}
