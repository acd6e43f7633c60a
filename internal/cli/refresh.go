package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/illmade-knight/go-apicache/pkg/render"
	"github.com/illmade-knight/go-apicache/pkg/types"
	"github.com/illmade-knight/go-apicache/pkg/upstream"
)

const msgFetched = "Successfully fetched %d items from API."

var messages = func() catalog.Catalog {
	b := catalog.NewBuilder()
	_ = b.Set(language.English, msgFetched, plural.Selectf(1, "%d",
		"=1", "Successfully fetched %[1]d item from API.",
		"other", "Successfully fetched %[1]d items from API.",
	))
	return b
}()

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Bypass the cache and fetch fresh data now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.newServices(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			out := newPrinter(cmd.OutOrStdout())
			if !svc.coordinator.MarkForRefresh(ctx) {
				return errors.New("failed to mark data for refresh, please try again")
			}
			out.Success("Data marked for refresh. The cache will be bypassed on the next request.")
			out.Line("Fetching fresh data from API...")

			payload, err := svc.coordinator.GetData(ctx, true)
			if err != nil {
				return fmt.Errorf("failed to fetch data: %s", publicError(err))
			}

			p := message.NewPrinter(language.English, message.Catalog(messages))
			out.Success(p.Sprintf(msgFetched, types.Len(payload)))

			info := svc.coordinator.GetCacheInfo(ctx)
			out.Line("Cache will expire in: " + render.HumanDuration(info.ExpiresIn.Round(time.Second)))
			return nil
		},
	}
}

// publicError returns the short upstream message when there is one.
func publicError(err error) string {
	var ue *upstream.Error
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return err.Error()
}
