package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newSendCmd(flags *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Forward a single payload read from a file or stdin",
		Example: `  hec-forwarder send --file records.json
  gzip -c records.json | hec-forwarder send`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.shutdown(cmd.Context())

			if err := a.cfg.Validate(); err != nil {
				a.log.Error(err, "invalid config")

				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("could not open payload: %w", err)
				}
				defer f.Close()
				in = f
			}

			result, err := a.handler.Handle(cmd.Context(), in)
			if err != nil {
				return err
			}

			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "payload file, stdin when empty or -")

	return cmd
}
