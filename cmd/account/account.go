package account

import (
	"github.com/spf13/cobra"

	"github.com/wayfarer/cli/cmd/cmdutil"
	"github.com/wayfarer/cli/internal/format"
	"github.com/wayfarer/cli/internal/nav"
)

// AccountCmd represents the account command
var AccountCmd = cmdutil.WithPage(&cobra.Command{
	Use:   "account",
	Short: "Account commands for the logged-in user",
	Long: `Account commands for the logged-in user.

Every command here needs a session; without one you are sent to login and
brought back afterwards.`,
}, nav.PathProfile)

// profileCmd shows the logged-in identity
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show your profile",
	Long:  "Display the account details of the logged-in user",
	RunE:  runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	if err := cmdutil.RequireSession(cmd, rt); err != nil {
		return err
	}
	return format.Fprint(cmd.OutOrStdout(), rt.Session.Identity())
}

func init() {
	AccountCmd.AddCommand(profileCmd)
}
