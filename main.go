package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/oaiiae/contactbook/cli/api"
	"github.com/oaiiae/contactbook/cli/logger"
	"github.com/oaiiae/contactbook/cli/seed"
	"github.com/oaiiae/contactbook/datastores"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	title    = "contactbook"
	version  = "dev"
	revision = ""
	created  = ""
)

// Options for the CLI. Pass `--port` or set the `SERVICE_PORT` env var.
type Options struct {
	api.ServerOptions
	api.RouterOptions
	api.StoreOptions
	logger.Options
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		var (
			log       = logger.New(&options.Options)
			lifecycle api.Lifecycle
		)

		hooks.OnStart(func() {
			ctx := context.Background()
			store, err := api.OpenContactsStore(ctx, &options.StoreOptions)
			if err != nil {
				log.Error("could not open store", "err", err)
				os.Exit(1)
			}
			metriks := metrics.NewSet()
			cache := api.NewContactsCache(&options.StoreOptions, metriks)
			lifecycle.Release(store.Close, cache.Close)

			server := api.NewServer(&options.ServerOptions,
				api.NewRouter(&options.RouterOptions, title, version, revision, created, log, metriks, store, cache),
				log,
			)
			log.Info("listening", "addr", server.Addr, "persistent", options.DatabaseURL != "")
			err = lifecycle.Serve(server)
			if !errors.Is(err, http.ErrServerClosed) {
				log.Error("failed to listen and serve", "err", err)
			} else {
				log.Info("server closed")
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := lifecycle.Shutdown(ctx); err != nil {
				log.Warn("could not shutdown the server", "err", err)
			}
		})
	})

	cli.Root().Use = title
	cli.Root().AddCommand(seed.Command(humacli.WithOptions(func(cmd *cobra.Command, _ []string, options *Options) {
		log := logger.New(&options.Options)
		err := seed.Run(cmd.Context(), options.DatabaseURL, seed.Count(cmd),
			func(ctx context.Context) (datastores.ContactsStore, error) {
				return api.OpenContactsStore(ctx, &options.StoreOptions)
			},
			log,
		)
		if err != nil {
			log.Error("could not seed contacts", slog.Any("err", err))
			os.Exit(1)
		}
	})))

	cli.Run()
}
