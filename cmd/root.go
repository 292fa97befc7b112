package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wayfarer/cli/cmd/account"
	"github.com/wayfarer/cli/cmd/auth"
	"github.com/wayfarer/cli/cmd/cmdutil"
	"github.com/wayfarer/cli/cmd/config"
	"github.com/wayfarer/cli/cmd/raw"
	"github.com/wayfarer/cli/internal/app"
	appConfig "github.com/wayfarer/cli/internal/config"
	"github.com/wayfarer/cli/internal/format"
)

var (
	cfgFile   string
	debug     bool
	output    string
	serverURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wayfarer",
	Short: "Wayfarer CLI - account and session client for the Wayfarer backend",
	Long: `Wayfarer CLI signs you up, logs you in and keeps your session between runs.

Registration, email verification, login with optional two-factor codes and
two-factor enrollment all talk to the backend over HTTP. The session cookie
is stored locally so later commands stay logged in.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Initialize(cfgFile); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		if debug {
			appConfig.SetDebug(true)
		}
		if output != "" {
			appConfig.SetOutputFormat(output)
		}
		if serverURL != "" {
			appConfig.SetServerURL(serverURL)
		}

		if cmdutil.Offline(cmd) {
			return nil
		}

		_, err := app.Init(cmd.Context(), app.Options{
			Page:    cmdutil.Page(cmd),
			Console: debug,
		})
		return err
	},
}

// Execute runs the command tree, reports where the operator was sent and
// releases the runtime.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	if rt, rtErr := app.Current(); rtErr == nil {
		printRedirectHint(rt)
	}
	if closeErr := app.Shutdown(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil && !cmdutil.IsReported(err) {
		format.PrintError("%v", err)
	}
	return err
}

func printRedirectHint(rt *app.Runtime) {
	route, ok := rt.Navigator.Last()
	if !ok {
		return
	}
	rt.Logger.Debug("navigated", zap.String("route", route.String()))
	if command := cmdutil.CommandFor(route); command != "" {
		fmt.Fprintf(os.Stderr, "Next: %s\n", command)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wayfarer.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format (table, json, json-compact, yaml, text)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL for this invocation")

	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(account.AccountCmd)
	rootCmd.AddCommand(config.ConfigCmd)
	rootCmd.AddCommand(raw.RawCmd)
}
