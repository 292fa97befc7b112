// Package cmdutil holds helpers shared by the command groups
package cmdutil

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/wayfarer/cli/internal/app"
	"github.com/wayfarer/cli/internal/guard"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/utils"
)

// PageAnnotation names the page a command stands for
const PageAnnotation = "wayfarer/page"

// OfflineAnnotation marks commands that run without the runtime
const OfflineAnnotation = "wayfarer/offline"

// pageCommands maps pages to the command that shows them
var pageCommands = map[string]string{
	nav.PathLogin:     "wayfarer auth login",
	nav.PathRegister:  "wayfarer auth register",
	nav.PathDashboard: "wayfarer auth status",
	nav.PathProfile:   "wayfarer account profile",
}

// Page returns the page annotated on cmd or its nearest parent
func Page(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if page, ok := c.Annotations[PageAnnotation]; ok {
			return page
		}
	}
	return nav.PathDashboard
}

// Offline reports whether cmd or a parent is marked offline
func Offline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[OfflineAnnotation]; ok {
			return true
		}
	}
	return false
}

// WithPage annotates cmd with page and returns it
func WithPage(cmd *cobra.Command, page string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[PageAnnotation] = page
	return cmd
}

// CommandFor renders the command that reaches route
func CommandFor(route nav.Route) string {
	command, ok := pageCommands[route.Path]
	if !ok {
		return ""
	}
	if route.Path == nav.PathRegister {
		if email := route.Query.Get("email"); email != "" {
			command += " verify --email " + email
		}
	}
	return command
}

// CommandForPath is CommandFor for a bare path
func CommandForPath(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return ""
	}
	return CommandFor(nav.Route{Path: u.Path, Query: u.Query()})
}

// Runtime returns the runtime initialised by the root command
func Runtime() (*app.Runtime, error) {
	return app.Current()
}

// ErrNotLoggedIn is returned by guarded commands without a session
var ErrNotLoggedIn = errors.New("not logged in")

// RequireSession admits cmd only with a live session. Without one the guard
// has already recorded the redirect to login.
func RequireSession(cmd *cobra.Command, rt *app.Runtime) error {
	switch rt.Guard.Admit(cmd.Context(), Page(cmd)) {
	case guard.DecisionRender:
		return nil
	case guard.DecisionWait:
		return fmt.Errorf("session check did not complete")
	}
	return ErrNotLoggedIn
}

type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// Reported marks err as already shown to the operator so Execute does not
// print it a second time
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// IsReported reports whether err was marked by Reported
func IsReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// ReportedIfAPI marks errors that came back from the backend. The session
// store notifies those itself.
func ReportedIfAPI(err error) error {
	if _, ok := utils.AsAPIError(err); ok {
		return Reported(err)
	}
	return err
}
