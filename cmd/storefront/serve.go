package main

import (
	"time"

	"github.com/agentuity/storefront/sys"
	"github.com/agentuity/storefront/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "HTTP port (default from PORT or 5000)")
	cmd.Flags().String("otlp-url", "", "OTLP/HTTP collector for log export")
	cmd.Flags().String("session-backend", "", "session store: memory, redis or sqlite")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := sys.ShutdownContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.cfg.ValidateServer(); err != nil {
		return err
	}
	a.log.With(a.cfg.Describe()).Info("starting storefront %s", a.cfg.Addr())
	if a.cfg.AdminPassword == "" {
		a.log.Warn("ADMIN_PASSWORD is not set, admin login is disabled")
	}

	sessions, err := a.sessions(ctx)
	if err != nil {
		return err
	}
	server, err := web.New(web.Options{
		Log:           a.log,
		Catalog:       a.catalog,
		Mirror:        a.mirror,
		Store:         a.remote,
		Settings:      a.settings,
		Sessions:      sessions,
		Assets:        a.assets,
		Secret:        a.cfg.SecretKey,
		AdminPassword: a.cfg.AdminPassword,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sys.RecoverPanic(a.log)
		return a.mirror.Run(gctx, a.cfg.MirrorRetry)
	})
	g.Go(func() error {
		return server.Run(gctx, a.cfg.Addr())
	})
	err = g.Wait()
	a.drain(10 * time.Second)
	return err
}
