package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/illmade-knight/go-apicache/pkg/render"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the state of the cache without fetching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.newServices(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			out := newPrinter(cmd.OutOrStdout())
			out.Field("Endpoint", a.cfg.Upstream.Endpoint)
			out.Field("Backend", a.cfg.Cache.Store.Backend)
			out.Field("Cache duration", render.HumanDuration(svc.coordinator.TTL()))

			info := svc.coordinator.GetCacheInfo(cmd.Context())
			if !info.HasCache {
				out.Warning("Nothing is cached yet.")
				return nil
			}
			out.Field("Last updated", render.HumanDuration(info.Age)+" ago")
			out.Field("Age (seconds)", strconv.FormatInt(info.AgeSeconds(), 10))
			out.Field("Valid", strconv.FormatBool(info.IsValid))
			if info.IsValid {
				out.Field("Expires in", render.HumanDuration(info.ExpiresIn.Round(time.Second)))
			} else {
				out.Warning("The cached data is stale and will be replaced on the next request.")
			}
			return nil
		},
	}
}
