package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wayfarer/cli/cmd/cmdutil"
	"github.com/wayfarer/cli/internal/app"
	"github.com/wayfarer/cli/internal/flow"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/utils"
)

// tfaCmd groups the two-factor commands; all of them need a session
var tfaCmd = cmdutil.WithPage(&cobra.Command{
	Use:   "tfa",
	Short: "Two-factor authentication commands",
	Long: `Two-factor authentication commands.

Enable a second factor with an authenticator app or email codes, turn it
off again, or fetch a fresh set of backup codes.`,
}, nav.PathProfile)

var tfaSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Enable two-factor authentication",
	Long: `Enroll a second factor. For an authenticator app the secret and the
otpauth URI are shown (use --qr-out to write a scannable PNG); the first
code from the app confirms it. Backup codes are shown exactly once.`,
	RunE: runTFASetup,
}

var tfaDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable two-factor authentication",
	Long:  "Turn the second factor off after confirming the account password",
	RunE:  runTFADisable,
}

var tfaBackupCodesCmd = &cobra.Command{
	Use:   "backup-codes",
	Short: "Fetch backup codes",
	Long:  "Fetch the account's backup codes from the server",
	RunE:  runTFABackupCodes,
}

func runTFASetup(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	if err := cmdutil.RequireSession(cmd, rt); err != nil {
		return err
	}
	ctx := cmd.Context()

	method, _ := cmd.Flags().GetString("method")
	qrOut, _ := cmd.Flags().GetString("qr-out")
	code, _ := cmd.Flags().GetString("code")

	enrollment := rt.NewEnrollment()
	defer enrollment.Cancel()

	material, err := enrollment.Start(ctx, models.TFAMethod(method))
	if err != nil {
		return err
	}

	if material.Method == models.TFAMethodAuthenticator {
		if err := showProvisioning(rt, material, qrOut); err != nil {
			return err
		}
	} else {
		rt.Notifier.Info("A code was sent to your email")
	}

	if err := confirmEnrollment(ctx, rt, enrollment, code); err != nil {
		return err
	}
	rt.Notifier.Success("Two-factor authentication enabled")

	if enrollment.State() == flow.EnrollBackupCodes {
		codes, err := enrollment.BackupCodes()
		if err != nil {
			return err
		}
		if err := exportBackupCodes(cmd, rt, codes); err != nil {
			return err
		}
	}
	return enrollment.Finish()
}

// confirmEnrollment asks for codes until one is accepted. Each setup call
// issues a new secret and new backup codes, so a rejected code is retried on
// the same enrollment instead of starting over.
func confirmEnrollment(ctx context.Context, rt *app.Runtime, enrollment *flow.Enrollment, code string) error {
	code, err := rt.Prompt.TextOr(code, "Code")
	for {
		if err != nil {
			return err
		}
		err = enrollment.Confirm(ctx, code)
		switch {
		case err == nil:
			return nil
		case utils.IsTransportError(err), !rt.Prompt.Interactive():
			return err
		case utils.IsValidationError(err), fromServer(err):
			rt.Notifier.Error(utils.Detail(err, err.Error()))
		default:
			return err
		}
		code, err = rt.Prompt.Text("Code")
	}
}

func showProvisioning(rt *app.Runtime, material *models.TwoFactorEnrollment, qrOut string) error {
	key, err := flow.ProvisioningKey(material.QRPayload)
	if err != nil {
		rt.Logger.Debug("enrollment payload is not an otpauth URI", zap.Error(err))
	} else {
		rt.Notifier.Info(fmt.Sprintf("Account: %s (%s)", key.AccountName(), key.Issuer()))
	}
	rt.Notifier.Info("Secret: " + material.Secret)
	rt.Notifier.Info("URI: " + material.QRPayload)

	if qrOut != "" {
		if err := flow.WriteQRCode(qrOut, material.QRPayload, flow.DefaultQRSize); err != nil {
			return err
		}
		rt.Notifier.Info("QR code written to " + qrOut)
	}
	return nil
}

// exportBackupCodes prints the codes and optionally copies or saves them
func exportBackupCodes(cmd *cobra.Command, rt *app.Runtime, codes []string) error {
	copyCodes, _ := cmd.Flags().GetBool("copy")
	dir, _ := cmd.Flags().GetString("download")

	rt.Notifier.Warning("Store these backup codes somewhere safe; each works once")
	fmt.Fprintln(cmd.OutOrStdout(), flow.BackupCodesText(codes))

	if copyCodes {
		if err := flow.CopyBackupCodes(codes); err != nil {
			return err
		}
		rt.Notifier.Success("Backup codes copied to the clipboard")
	}
	if cmd.Flags().Changed("download") {
		email := ""
		if identity := rt.Session.Identity(); identity != nil {
			email = identity.Email
		}
		path, err := flow.WriteBackupCodes(dir, email, codes)
		if err != nil {
			return err
		}
		rt.Notifier.Success("Backup codes saved to " + path)
	}
	return nil
}

func runTFADisable(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	if err := cmdutil.RequireSession(cmd, rt); err != nil {
		return err
	}

	password, _ := cmd.Flags().GetString("password")
	if password, err = rt.Prompt.PasswordOr(password, "Password"); err != nil {
		return err
	}

	if err := flow.DisableTwoFactor(cmd.Context(), rt.API, rt.Session, password); err != nil {
		return err
	}
	rt.Notifier.Success("Two-factor authentication disabled")
	return nil
}

func runTFABackupCodes(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	if err := cmdutil.RequireSession(cmd, rt); err != nil {
		return err
	}

	codes, err := fetchBackupCodes(cmd.Context(), rt)
	if err != nil {
		return err
	}
	return exportBackupCodes(cmd, rt, codes)
}

func fetchBackupCodes(ctx context.Context, rt *app.Runtime) ([]string, error) {
	codes, err := rt.API.BackupCodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, errors.New("two-factor authentication is not enabled")
	}
	return codes, nil
}

func init() {
	tfaSetupCmd.Flags().StringP("method", "m", string(models.TFAMethodAuthenticator), "Second factor: authenticator or email")
	tfaSetupCmd.Flags().String("qr-out", "", "Write the enrollment QR code as a PNG to this path")
	tfaSetupCmd.Flags().StringP("code", "c", "", "Confirmation code")

	tfaDisableCmd.Flags().StringP("password", "p", "", "Account password")

	for _, c := range []*cobra.Command{tfaSetupCmd, tfaBackupCodesCmd} {
		c.Flags().Bool("copy", false, "Copy the backup codes to the clipboard")
		c.Flags().String("download", "", "Save the backup codes into this directory")
	}

	tfaCmd.AddCommand(tfaSetupCmd)
	tfaCmd.AddCommand(tfaDisableCmd)
	tfaCmd.AddCommand(tfaBackupCodesCmd)
}
