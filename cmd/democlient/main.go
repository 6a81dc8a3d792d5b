package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/relyingparty"
	"github.com/dgellow/codegrant/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.LogError("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DEMOCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "democlient",
		Short:         "Sample application that signs users in through codegrant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := v.GetString("client-secret")
			if secret == "" {
				return errors.New("--client-secret (or DEMOCLIENT_CLIENT_SECRET) is required")
			}

			app, err := relyingparty.New(relyingparty.Config{
				ServerURL:    v.GetString("server-url"),
				ClientID:     v.GetString("client-id"),
				ClientSecret: secret,
				RedirectURL:  v.GetString("redirect-url"),
				Scopes:       strings.Fields(v.GetString("scope")),
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), server.NewHTTPServer(app.Handler(), v.GetString("addr")))
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8001", "listen address")
	flags.String("server-url", relyingparty.DefaultServerURL, "authorization server base URL")
	flags.String("client-id", relyingparty.DefaultClientID, "registered client id")
	flags.String("client-secret", "", "registered client secret")
	flags.String("redirect-url", relyingparty.DefaultRedirectURL, "registered redirect URI")
	flags.String("scope", relyingparty.DefaultScope, "space separated scopes to request")
	_ = v.BindPFlags(flags)

	return cmd
}

func serve(ctx context.Context, srv *server.HTTPServer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	return g.Wait()
}
