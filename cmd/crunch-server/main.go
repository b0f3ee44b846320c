// Command crunch-server serves the batch API, the progress websocket and
// the metrics endpoint.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"crunchcli/internal/app"
	"crunchcli/pkg/contracts"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "crunch-server",
		Short:        "Serve the crunch batch API",
		Version:      contracts.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.NewApplication(configPath)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}
	cmd.SetVersionTemplate(contracts.GetFullVersionString() + "\n")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file (default crunch.yaml or $CRUNCH_CONFIG)")

	if err := cmd.Execute(); err != nil {
		slog.Error("crunch-server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
