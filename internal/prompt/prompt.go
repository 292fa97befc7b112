// Package prompt reads operator input for the interactive commands
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is replaced in tests so the terminal is never touched
var readPassword = term.ReadPassword

// isTerminal reports whether stdin is interactive
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// ErrNotInteractive is returned when input is required but stdin is not a
// terminal
var ErrNotInteractive = errors.New("input required but stdin is not a terminal; pass it as a flag")

// Prompter asks questions on w and reads answers from r
type Prompter struct {
	r *bufio.Reader
	w io.Writer

	// scripted prompters read passwords from r and never consult the terminal
	scripted    bool
	interactive bool
}

// New creates a prompter over r and w
func New(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{r: bufio.NewReader(r), w: w}
}

// Scripted answers every prompt, passwords included, from r. interactive is
// what Interactive reports.
func Scripted(r io.Reader, w io.Writer, interactive bool) *Prompter {
	p := New(r, w)
	p.scripted = true
	p.interactive = interactive
	return p
}

// Default prompts on stderr and reads stdin
func Default() *Prompter {
	return New(os.Stdin, os.Stderr)
}

// Interactive reports whether prompting is possible
func (p *Prompter) Interactive() bool {
	if p.scripted {
		return p.interactive
	}
	return isTerminal()
}

// Text reads one trimmed line. A partial line before EOF is returned.
func (p *Prompter) Text(label string) (string, error) {
	if _, err := fmt.Fprintf(p.w, "%s: ", label); err != nil {
		return "", err
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password reads a secret without echo
func (p *Prompter) Password(label string) (string, error) {
	if p.scripted {
		return p.Text(label)
	}
	if _, err := fmt.Fprintf(p.w, "%s: ", label); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// TextOr returns value when set, otherwise prompts for it
func (p *Prompter) TextOr(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	if !p.Interactive() {
		return "", ErrNotInteractive
	}
	return p.Text(label)
}

// PasswordOr returns value when set, otherwise prompts for it without echo
func (p *Prompter) PasswordOr(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	if !p.Interactive() {
		return "", ErrNotInteractive
	}
	return p.Password(label)
}

// Confirm asks a yes/no question; anything but y or yes is no
func (p *Prompter) Confirm(label string) (bool, error) {
	answer, err := p.Text(label + " [y/N]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
