package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wayfarer/cli/cmd/cmdutil"
	appConfig "github.com/wayfarer/cli/internal/config"
	"github.com/wayfarer/cli/internal/format"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "CLI configuration commands",
	Long: `CLI configuration commands for Wayfarer CLI.

This command group shows the active configuration, where it lives and
changes single values.`,
	Annotations: map[string]string{cmdutil.OfflineAnnotation: "true"},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return format.Fprint(cmd.OutOrStdout(), appConfig.Get().Flatten())
	},
}

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), appConfig.Path())
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save the file. Known keys:

  server.url, server.timeout, cookies.csrf_name, cookies.csrf_header,
  state.path, log.path, log.level, auth.resend_cooldown,
  auth.login_lockout, format.default, format.colors`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Set(args[0], args[1]); err != nil {
			return err
		}
		format.PrintSuccess("%s set to %s", args[0], args[1])
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(showCmd)
	ConfigCmd.AddCommand(pathCmd)
	ConfigCmd.AddCommand(setCmd)
}
