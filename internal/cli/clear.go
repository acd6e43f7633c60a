package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached data and any pending refresh flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.newServices(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := svc.coordinator.ClearCache(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			newPrinter(cmd.OutOrStdout()).Success("Cache cleared.")
			return nil
		},
	}
}
