package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relay_bot/internal/app"
	"relay_bot/internal/config"
	"relay_bot/internal/logger"
	"relay_bot/internal/telegram"

	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "relay_bot",
		Short:         "Relay new posts from source channels to a target channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			logger.Init()
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path of the .env file to load")

	runCmd := newRunCmd()
	root.AddCommand(runCmd, newLoginCmd())
	// 不带子命令时直接运行
	root.RunE = runCmd.RunE
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start polling source channels and forwarding new content",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				application.Close(closeCtx)
			}()

			logger.L().Info("Starting relay bot")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.L().Info("Relay bot stopped")
			return nil
		},
	}
}

func newLoginCmd() *cobra.Command {
	var phone, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a user account and write the session file",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := config.LoadCredentials()
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}

			client, err := telegram.NewClient(telegram.Config{
				APIID:       creds.APIID,
				APIHash:     creds.APIHash,
				SessionPath: creds.SessionPath,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reader := bufio.NewReader(cmd.InOrStdin())
			if phone == "" {
				if phone, err = prompt(cmd, reader, "Phone number: "); err != nil {
					return err
				}
			}

			return client.Login(ctx, phone, password, func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
				return prompt(cmd, reader, "Login code: ")
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "phone number in international format")
	cmd.Flags().StringVar(&password, "password", "", "two-step verification password, if enabled")
	return cmd
}

func prompt(cmd *cobra.Command, reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
