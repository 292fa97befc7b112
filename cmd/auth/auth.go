package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wayfarer/cli/cmd/cmdutil"
	"github.com/wayfarer/cli/internal/app"
	"github.com/wayfarer/cli/internal/flow"
	"github.com/wayfarer/cli/internal/format"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/session"
	"github.com/wayfarer/cli/internal/utils"
)

// AuthCmd represents the auth command
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Registration, login and two-factor commands",
	Long: `Registration, login and two-factor commands for Wayfarer CLI.

This command group includes sign up with email verification, login with an
optional second factor, logout, session status and two-factor management.`,
}

// loginCmd represents the login command
var loginCmd = cmdutil.WithPage(&cobra.Command{
	Use:   "login",
	Short: "Log in to Wayfarer",
	Long: `Authenticate with email and password. Missing values are prompted for.
When the account has two-factor authentication on, the emailed or
authenticator code is asked for next; type 'resend' to get a new code.`,
	RunE: runLogin,
}, nav.PathLogin)

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of Wayfarer",
	Long:  "End the current session on the server and forget it locally",
	RunE:  runLogout,
}

// statusCmd represents the status command
var statusCmd = cmdutil.WithPage(&cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Check the stored session against the server and show who is logged in",
	RunE:  runStatus,
}, nav.PathDashboard)

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}

	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	code, _ := cmd.Flags().GetString("code")

	if email, err = rt.Prompt.TextOr(email, "Email"); err != nil {
		return err
	}
	if password, err = rt.Prompt.PasswordOr(password, "Password"); err != nil {
		return err
	}

	return login(cmd.Context(), rt, email, password, code)
}

// login runs the password step, the second factor when one is due and the
// verification handoff for unverified accounts
func login(ctx context.Context, rt *app.Runtime, email, password, code string) error {
	challenge, err := rt.NewLogin().Submit(ctx, email, password)
	if err != nil {
		var unverified *session.UnverifiedEmailError
		if errors.As(err, &unverified) {
			return verifyThenLogin(ctx, rt, unverified.Email, password)
		}

		var limited *flow.RateLimitError
		if errors.As(err, &limited) {
			wait := limited.Wait(time.Now()).Round(time.Second)
			if limited.Detail != "" {
				rt.Notifier.Info(fmt.Sprintf("Try again in %s", wait))
				return cmdutil.Reported(err)
			}
			return fmt.Errorf("too many login attempts, try again in %s", wait)
		}
		return cmdutil.ReportedIfAPI(err)
	}

	if challenge != nil {
		resend := func(ctx context.Context) (*models.TwoFactorChallenge, error) {
			return rt.Session.Login(ctx, email, password)
		}
		if err := completeChallenge(ctx, rt, challenge, resend, code); err != nil {
			return err
		}
	}

	return continueAfterLogin(ctx, rt)
}

// completeChallenge asks for second-factor codes until one is accepted
func completeChallenge(ctx context.Context, rt *app.Runtime, pending *models.TwoFactorChallenge, resend flow.ResendFunc, code string) error {
	challenge := rt.NewChallenge(pending, resend)
	defer challenge.Cancel()

	if code != "" {
		_, err := challenge.Complete(ctx, code)
		return cmdutil.ReportedIfAPI(err)
	}
	if !rt.Prompt.Interactive() {
		return fmt.Errorf("a verification code is required; pass it with --code")
	}

	for {
		input, err := rt.Prompt.Text("Verification code (or 'resend')")
		if err != nil {
			return err
		}

		if strings.EqualFold(input, "resend") {
			switch err := challenge.Resend(ctx); {
			case errors.Is(err, flow.ErrCooldownActive):
				rt.Notifier.Warning(fmt.Sprintf("Wait %ds before requesting another code", challenge.Cooldown().SecondsRemaining))
			case fromServer(err):
			case err != nil:
				return err
			default:
				rt.Notifier.Info("A new code is on its way")
			}
			continue
		}

		_, err = challenge.Complete(ctx, input)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, flow.ErrChallengeExpired):
			return fmt.Errorf("the verification window expired; log in again")
		case errors.Is(err, flow.ErrTooManyAttempts):
			return cmdutil.Reported(err)
		case utils.IsValidationError(err):
			rt.Notifier.Error(err.Error())
		case utils.IsTransportError(err):
			return cmdutil.Reported(err)
		case fromServer(err):
		default:
			return err
		}
	}
}

// fromServer reports whether err is a backend answer the session store has
// already shown
func fromServer(err error) bool {
	_, ok := utils.AsAPIError(err)
	return ok
}

// verifyThenLogin is the in-memory handoff from an unverified login to the
// verification step, with the email prefilled
func verifyThenLogin(ctx context.Context, rt *app.Runtime, email, password string) error {
	if !rt.Prompt.Interactive() {
		return cmdutil.Reported(fmt.Errorf("email %s is not verified", email))
	}

	reg := rt.NewRegistration()
	defer reg.Close()
	if _, err := reg.Resume(ctx, email); err != nil {
		return err
	}
	announceVerified(rt, reg, "")

	if err := runVerification(ctx, rt, reg); err != nil {
		return err
	}
	return login(ctx, rt, email, password, "")
}

// continueAfterLogin consumes the page remembered by the guard
func continueAfterLogin(ctx context.Context, rt *app.Runtime) error {
	from, err := rt.Markers.TakeReturnTo(ctx)
	if err != nil {
		rt.Logger.Debug("could not read return page", zap.Error(err))
		return nil
	}
	if from == "" {
		from = nav.PathDashboard
	}
	rt.Navigator.Navigate(from, nil)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	return cmdutil.ReportedIfAPI(rt.Session.Logout(cmd.Context()))
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}

	identity := rt.Session.CheckOnce(cmd.Context())
	status := sessionStatus{Server: rt.Config.Server.URL, LoggedIn: identity != nil}
	if identity != nil {
		status.Email = identity.Email
		status.Name = identity.DisplayName
		status.TFAEnabled = identity.TFAEnabled
	}
	return format.Fprint(cmd.OutOrStdout(), status)
}

type sessionStatus struct {
	LoggedIn   bool   `json:"logged_in" yaml:"logged_in"`
	Email      string `json:"email,omitempty" yaml:"email,omitempty"`
	Name       string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	TFAEnabled bool   `json:"tfa_enabled" yaml:"tfa_enabled"`
	Server     string `json:"server" yaml:"server"`
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "Email address")
	loginCmd.Flags().StringP("password", "p", "", "Password")
	loginCmd.Flags().String("code", "", "Second-factor code, if one is required")

	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
	AuthCmd.AddCommand(registerCmd)
	AuthCmd.AddCommand(tfaCmd)
}
