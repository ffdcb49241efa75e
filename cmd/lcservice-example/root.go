package main

import (
	"github.com/spf13/cobra"

	"github.com/bjaus/lcservice/internal/config"
)

type app struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lcservice-example",
		Short: "Package inventory service",
		Long: `lcservice-example answers platform envelopes for a small package
inventory service: on request it tasks a sensor for its installed packages
and reports them in a job once the sensor answers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newSignCmd(a),
		newRuleCmd(a),
	)
	return root
}
