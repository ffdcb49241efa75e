package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

func newRuleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rule",
		Short: "Print the detection & response rule installed in every organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newInventory(a.cfg.Service.Name, a.cfg.Service.Secret, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			rule, _ := svc.InteractiveRule()
			b, err := rule.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
