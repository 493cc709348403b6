// Command kokorod runs the companion platform: the HTTP API, the event
// broker and the background agents.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	kokoro "github.com/kokoro-ai/kokoro"
	"github.com/kokoro-ai/kokoro/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "kokorod",
		Short:         "Conversational companion platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")
	root.AddCommand(newServeCmd(&cfgPath), newEvolveCmd(&cfgPath))
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			platform, err := kokoro.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			defer platform.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := platform.Start(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           platform.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", cfg.Server.Addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newEvolveCmd(cfgPath *string) *cobra.Command {
	var (
		userID string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run one playbook evolution cycle for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			platform, err := kokoro.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			defer platform.Close()

			pb, skipped, err := platform.EvolvePlaybook(cmd.Context(), userID, force)
			if err != nil {
				return err
			}
			if skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped: playbook for %s updated within the last cycle interval\n", userID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "playbook for %s now at version %d\n", userID, pb.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user whose playbook to evolve")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the idempotence guard")
	cmd.MarkFlagRequired("user")
	return cmd
}
