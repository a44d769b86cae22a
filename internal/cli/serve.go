package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/matzehuels/stackforge/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	config := server.DefaultConfig()
	var rps float64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve published package information over HTTP",
		Long: `Run the package-info registry over the package store. Consumers on other
hosts query it to locate install roots and components. Prometheus metrics are
exposed on /metrics.`,
		Example: `  stackforge serve --addr :8080
  stackforge serve --mongo-uri mongodb://db:27017`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			config.RateLimit = rate.Limit(rps)
			s := server.New(store, config, c.Logger)

			return s.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&config.Addr, "addr", config.Addr, "listen address")
	cmd.Flags().Float64Var(&rps, "rate-limit", float64(config.RateLimit), "package API requests per second (0 disables)")
	cmd.Flags().IntVar(&config.RateLimitBurst, "rate-burst", config.RateLimitBurst, "rate limiter burst")
	return cmd
}
