package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bjaus/lcservice"
)

func newSignCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the lc-svc-sig signature of an envelope",
		Long: `sign computes the signature the platform would send with the envelope
in --file ("-" for stdin), using service.secret.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				body []byte
				err  error
			)
			if file == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read envelope: %w", err)
			}

			sig, err := lcservice.NewVerifier(a.cfg.Service.Secret, nil).Sign(body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "envelope to sign")
	return cmd
}
