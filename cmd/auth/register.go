package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wayfarer/cli/cmd/cmdutil"
	"github.com/wayfarer/cli/internal/app"
	"github.com/wayfarer/cli/internal/cooldown"
	"github.com/wayfarer/cli/internal/flow"
	"github.com/wayfarer/cli/internal/format"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/utils"
)

// registerCmd runs the whole sign-up interactively; its subcommands run one
// step at a time
var registerCmd = cmdutil.WithPage(&cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create an account and verify the email address.

Without a subcommand the form is prompted for, a code is emailed and then
asked for. A registration left unfinished is picked up again on the next
run as long as the server still has it pending.`,
	RunE: runRegister,
}, nav.PathRegister)

var registerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Submit the registration form",
	Long:  "Send email, name and password; a verification code is emailed",
	RunE:  runRegisterStart,
}

var registerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Confirm the emailed code",
	Long:  "Confirm the pending registration with the six-digit code from the email",
	RunE:  runRegisterVerify,
}

var registerResendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Email a new verification code",
	Long:  "Request a new code for the pending registration once the resend countdown is over",
	RunE:  runRegisterResend,
}

var registerStatusCmd = &cobra.Command{
	Use:   "status [email]",
	Short: "Show registration status",
	Long:  "Ask the server how far the registration for an email got; defaults to the pending one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRegisterStatus,
}

var registerAbandonCmd = &cobra.Command{
	Use:   "abandon",
	Short: "Forget the pending registration",
	Long:  "Go back to the form: the pending marker is removed and the countdown stopped",
	RunE:  runRegisterAbandon,
}

func runRegister(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	if !rt.Prompt.Interactive() {
		return fmt.Errorf("interactive registration needs a terminal; use 'register start' and 'register verify'")
	}

	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")

	reg := rt.NewRegistration()
	defer reg.Close()

	state, err := reg.Resume(ctx, email)
	if err != nil {
		return err
	}

	var password string
	if state == flow.StateForm {
		for {
			form, err := promptForm(rt)
			if err != nil {
				return err
			}
			err = reg.Submit(ctx, form)
			if utils.IsValidationError(err) {
				rt.Notifier.Error(err.Error())
				continue
			}
			if err != nil {
				return cmdutil.ReportedIfAPI(err)
			}
			password = form.Password
			break
		}
	} else {
		rt.Notifier.Info(fmt.Sprintf("Continuing registration for %s", reg.Email()))
	}

	// without the password from this run the operator logs in separately
	next := ""
	if password == "" {
		next = nav.PathLogin
	}
	announceVerified(rt, reg, next)

	if err := runVerification(ctx, rt, reg); err != nil {
		return err
	}
	if password == "" {
		return nil
	}
	return login(ctx, rt, reg.Email(), password, "")
}

// announceVerified reports an accepted code and, when next is set, moves on
// to that page
func announceVerified(rt *app.Runtime, reg *flow.Registration, next string) {
	reg.OnVerified(func(user models.VerifiedUser) {
		rt.Notifier.Success(fmt.Sprintf("Email %s verified", user.Email))
		if next != "" {
			rt.Navigator.Navigate(next, nil)
		}
	})
}

func promptForm(rt *app.Runtime) (flow.RegistrationForm, error) {
	var form flow.RegistrationForm
	var err error

	if form.Email, err = rt.Prompt.Text("Email"); err != nil {
		return form, err
	}
	if form.Name, err = rt.Prompt.Text("Full name (optional)"); err != nil {
		return form, err
	}
	if form.Password, err = rt.Prompt.Password("Password"); err != nil {
		return form, err
	}
	if form.Confirm, err = rt.Prompt.Password("Confirm password"); err != nil {
		return form, err
	}
	return form, nil
}

// runVerification prompts for the emailed code until it is accepted. The
// operator can also type 'resend' or 'back'.
func runVerification(ctx context.Context, rt *app.Runtime, reg *flow.Registration) error {
	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	reg.WatchCooldown(watchCtx, func(s cooldown.State) {
		if s.CanResend {
			rt.Notifier.Info("You can request a new code now; type 'resend'")
		}
	})

	for {
		input, err := rt.Prompt.Text(fmt.Sprintf("Code sent to %s (or 'resend', 'back')", reg.Email()))
		if err != nil {
			return err
		}

		switch strings.ToLower(input) {
		case "resend":
			resp, err := reg.Resend(ctx)
			switch {
			case errors.Is(err, flow.ErrCooldownActive):
				rt.Notifier.Warning(fmt.Sprintf("Wait %ds before requesting another code", reg.Cooldown().SecondsRemaining))
			case err != nil:
				rt.Notifier.Error(utils.Detail(err, err.Error()))
			default:
				rt.Notifier.Success(resendMessage(resp))
				reg.WatchCooldown(watchCtx, func(s cooldown.State) {
					if s.CanResend {
						rt.Notifier.Info("You can request a new code now; type 'resend'")
					}
				})
			}
			continue
		case "back":
			if err := reg.Back(ctx); err != nil {
				return err
			}
			return fmt.Errorf("registration abandoned")
		}

		if _, err := reg.Verify(ctx, input); err != nil {
			rt.Notifier.Error(utils.Detail(err, err.Error()))
			if utils.IsTransportError(err) {
				return cmdutil.Reported(err)
			}
			continue
		}
		return nil
	}
}

func resendMessage(resp *models.MessageResponse) string {
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return "A new code is on its way"
}

func runRegisterStart(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}

	form := flow.RegistrationForm{}
	form.Email, _ = cmd.Flags().GetString("email")
	form.Name, _ = cmd.Flags().GetString("name")
	form.Password, _ = cmd.Flags().GetString("password")
	form.Confirm = form.Password

	if form.Email, err = rt.Prompt.TextOr(form.Email, "Email"); err != nil {
		return err
	}
	if form.Password == "" {
		if form.Password, err = rt.Prompt.PasswordOr("", "Password"); err != nil {
			return err
		}
		if form.Confirm, err = rt.Prompt.Password("Confirm password"); err != nil {
			return err
		}
	}

	reg := rt.NewRegistration()
	defer reg.Close()
	if err := reg.Submit(cmd.Context(), form); err != nil {
		return cmdutil.ReportedIfAPI(err)
	}

	rt.Notifier.Info("Next: wayfarer auth register verify --code <code>")
	return nil
}

// resumeFor resumes the pending registration, or starts verifying email when
// it differs from the pending one
func resumeFor(ctx context.Context, rt *app.Runtime, reg *flow.Registration, email string) error {
	if email != "" {
		pending, err := rt.Markers.LoadPending(ctx)
		if err != nil {
			return err
		}
		if pending != nil && strings.EqualFold(pending.Email, email) {
			email = ""
		}
	}

	state, err := reg.Resume(ctx, email)
	if err != nil {
		return err
	}
	if state != flow.StateVerifying {
		return fmt.Errorf("no registration is pending; run 'wayfarer auth register start' first")
	}
	return nil
}

func runRegisterVerify(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")
	code, _ := cmd.Flags().GetString("code")

	reg := rt.NewRegistration()
	defer reg.Close()
	if err := resumeFor(ctx, rt, reg, email); err != nil {
		return err
	}

	if code, err = rt.Prompt.TextOr(code, "Code"); err != nil {
		return err
	}
	announceVerified(rt, reg, nav.PathLogin)
	_, err = reg.Verify(ctx, code)
	return err
}

func runRegisterResend(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	reg := rt.NewRegistration()
	defer reg.Close()
	if err := resumeFor(ctx, rt, reg, ""); err != nil {
		return err
	}

	resp, err := reg.Resend(ctx)
	if errors.Is(err, flow.ErrCooldownActive) {
		return fmt.Errorf("wait %ds before requesting another code", reg.Cooldown().SecondsRemaining)
	}
	if err != nil {
		return err
	}
	rt.Notifier.Success(resendMessage(resp))
	return nil
}

type registrationReport struct {
	Email            string `json:"email" yaml:"email"`
	Status           string `json:"status" yaml:"status"`
	Message          string `json:"message,omitempty" yaml:"message,omitempty"`
	Pending          bool   `json:"pending_locally" yaml:"pending_locally"`
	ResendAvailable  bool   `json:"resend_available" yaml:"resend_available"`
	SecondsRemaining int    `json:"seconds_remaining" yaml:"seconds_remaining"`
}

func runRegisterStatus(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pending, err := rt.Markers.LoadPending(ctx)
	if err != nil {
		return err
	}

	var email string
	if len(args) == 1 {
		email = args[0]
	} else if pending != nil {
		email = pending.Email
	} else {
		return fmt.Errorf("no registration is pending; pass an email")
	}

	status, err := rt.API.RegistrationStatus(ctx, email)
	if err != nil {
		return err
	}

	report := registrationReport{Email: email, Status: status.Status, Message: status.Message, ResendAvailable: status.CanResend}
	if pending != nil && strings.EqualFold(pending.Email, email) {
		cd := cooldown.New(rt.Config.Auth.ResendCooldownDuration())
		cd.RestartAt(pending.SubmittedAt)
		state := cd.State()
		report.Pending = true
		report.ResendAvailable = state.CanResend
		report.SecondsRemaining = state.SecondsRemaining
	}
	return format.Fprint(cmd.OutOrStdout(), report)
}

func runRegisterAbandon(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	reg := rt.NewRegistration()
	defer reg.Close()
	if err := resumeFor(ctx, rt, reg, ""); err != nil {
		return err
	}
	email := reg.Email()
	if err := reg.Back(ctx); err != nil {
		return err
	}
	rt.Notifier.Success(fmt.Sprintf("Pending registration for %s forgotten", email))
	return nil
}

func init() {
	registerCmd.Flags().String("email", "", "Continue verifying this email instead of showing the form")

	registerStartCmd.Flags().StringP("email", "e", "", "Email address")
	registerStartCmd.Flags().StringP("name", "n", "", "Full name")
	registerStartCmd.Flags().StringP("password", "p", "", "Password")

	registerVerifyCmd.Flags().StringP("email", "e", "", "Email to verify (defaults to the pending registration)")
	registerVerifyCmd.Flags().StringP("code", "c", "", "Six-digit code from the email")

	registerCmd.AddCommand(registerStartCmd)
	registerCmd.AddCommand(registerVerifyCmd)
	registerCmd.AddCommand(registerResendCmd)
	registerCmd.AddCommand(registerStatusCmd)
	registerCmd.AddCommand(registerAbandonCmd)
}
