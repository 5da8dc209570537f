package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aethercore-labs/aethercore/config"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/consensus/detection"
	"github.com/aethercore-labs/aethercore/consensus/safety"
	"github.com/spf13/cobra"
)

var errNotPassed = errors.New("chain did not pass the safety evaluation")

func newEvaluateCommand(opts *rootOptions) *cobra.Command {
	var (
		level  string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate <snapshot.json>",
		Short: "Evaluate the safety of a chain snapshot",
		Long: "Evaluate reads a JSON document with blocks, profile and an optional now\n" +
			"timestamp and prints the safety report.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := certification.ParseLevel(level)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var params safety.Params
			if err := json.Unmarshal(data, &params); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}

			certifier := certification.Default()
			if opts.configPath != "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				cc, err := cfg.CertifierConfig()
				if err != nil {
					return err
				}
				if certifier, err = certification.New(cc); err != nil {
					return err
				}
			}

			res, err := safety.NewEvaluator(certifier, detection.NewAnalyzer()).
				EvaluateBlockchainSafety(cmd.Context(), params, l)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if strict && !res.Passed {
				return errNotPassed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", string(certification.LevelStandard), "certification level: STANDARD, ENHANCED or QUANTUM")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the chain does not pass")
	return cmd
}
