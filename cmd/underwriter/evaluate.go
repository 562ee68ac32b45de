package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/seed"
)

func newEvaluateCmd(app *cli) *cobra.Command {
	var proposalPath, packPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one proposal offline against a rule pack",
		Example: `  underwriter evaluate --proposal proposal.json
  cat proposal.json | underwriter evaluate --proposal - --pack rules.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			proposal, err := readProposal(cmd.InOrStdin(), proposalPath)
			if err != nil {
				return err
			}

			pack := seed.Default()
			if packPath != "" {
				if pack, err = seed.LoadFile(packPath); err != nil {
					return err
				}
			}

			_, processor, err := newProcessor(app.cfg.Engine)
			if err != nil {
				return err
			}

			result, err := processor.Evaluate(cmd.Context(), proposal, pack.Snapshot())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&proposalPath, "proposal", "p", "", "proposal JSON file, or - for stdin")
	cmd.Flags().StringVar(&packPath, "pack", "", "rule pack YAML (default: built-in pack)")
	_ = cmd.MarkFlagRequired("proposal")
	return cmd
}

func readProposal(stdin io.Reader, path string) (*domain.Proposal, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open proposal: %w", err)
		}
		defer f.Close()
		r = f
	}

	var p domain.Proposal
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode proposal: %w", err)
	}
	return &p, nil
}
