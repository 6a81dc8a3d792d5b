package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgellow/codegrant/internal"
	"github.com/dgellow/codegrant/internal/config"
	"github.com/dgellow/codegrant/internal/crypto"
	"github.com/dgellow/codegrant/internal/log"
)

var BuildVersion = "dev"

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
	v.SetEnvPrefix("CODEGRANT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "codegrant",
		Short:         "OAuth 2.0 authorization server for the authorization code grant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if level := v.GetString("log-level"); level != "" {
				return log.SetLogLevel(level)
			}
			return nil
		},
	}

	root.PersistentFlags().String("log-level", "", "log level (error, warn, info, debug, trace)")
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(
		newServeCmd(v),
		newValidateCmd(v),
		newConfigInitCmd(),
		newHashSecretCmd(),
		newVersionCmd(),
	)
	return root
}

func configPath(v *viper.Viper) (string, error) {
	path := v.GetString("config")
	if path == "" {
		return "", errors.New("--config flag (or CODEGRANT_CONFIG) is required")
	}
	return path, nil
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(v)
			if err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if addr := v.GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			log.LogInfoWithFields("main", "Starting codegrant", map[string]any{
				"version": BuildVersion,
				"config":  path,
			})

			app, err := internal.NewCodeGrant(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create authorization server: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address, overrides server.addr")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a config file without resolving environment variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(v)
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), path)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-init <path>",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])
			return nil
		},
	}
}

func newHashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret",
		Short: "Read a password from stdin and print its bcrypt hash for users[].passwordHash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hash, err := hashSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func hashSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("empty secret")
	}

	hash, err := crypto.HashSecret(secret)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildVersion)
		},
	}
}
