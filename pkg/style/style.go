// Package style provides terminal styling for the jobprep CLI: colored
// labels, run progress lines and Typer-like help output for cobra commands.
package style

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ANSI color codes
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Italic = "\033[3m"

	Red     = "\033[0;31m"
	Green   = "\033[0;32m"
	Yellow  = "\033[1;33m"
	Blue    = "\033[0;34m"
	Magenta = "\033[0;35m"
	Cyan    = "\033[0;36m"
	Gray    = "\033[90m"
)

// NoColor disables colors (non-TTY stdout or JOBPREP_NO_COLOR).
var NoColor = false

func init() {
	if os.Getenv("JOBPREP_NO_COLOR") != "" || os.Getenv("NO_COLOR") != "" {
		NoColor = true
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			NoColor = true
		}
	}
}

// C wraps text with color, respecting NoColor.
func C(color, text string) string {
	if NoColor {
		return text
	}
	return color + text + Reset
}

// B makes text bold.
func B(text string) string {
	if NoColor {
		return text
	}
	return Bold + text + Reset
}

// Success formats a success label.
func Success(label string) string {
	return C(Green, label+":") + " "
}

// Warning formats a warning label.
func Warning(label string) string {
	return C(Yellow, label+":") + " "
}

// Failure formats an error label.
func Failure(label string) string {
	return C(Red, label+":") + " "
}

// Status colors a run status (running, interrupted, completed, failed).
func Status(s string) string {
	switch s {
	case "completed":
		return C(Green, s)
	case "interrupted":
		return C(Yellow, "awaiting approval")
	case "failed":
		return C(Red, s)
	default:
		return C(Cyan, s)
	}
}

// Step writes one progress line: "[n/total] label".
func Step(w io.Writer, n, total int, label string) {
	fmt.Fprintf(w, "%s %s\n", C(Gray, fmt.Sprintf("[%d/%d]", n, total)), label)
}

// Heading writes a bold section heading followed by a blank line.
func Heading(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n\n", C(Bold+Magenta, title))
}

// SetupHelp installs the styled help and usage templates on cmd.
func SetupHelp(cmd *cobra.Command) {
	cobra.AddTemplateFunc("styleHeading", styleHeading)
	cobra.AddTemplateFunc("styleCommand", styleCommand)
	cobra.AddTemplateFunc("rpadStyled", rpadStyled)

	cmd.SetUsageTemplate(usageTemplate)
	cmd.SetHelpTemplate(helpTemplate)
}

func styleHeading(s string) string {
	return C(Bold+Magenta, s)
}

func styleCommand(s string) string {
	return C(Cyan, s)
}

// rpadStyled pads on the raw length so escape codes don't break alignment.
func rpadStyled(s string, padding int) string {
	styled := styleCommand(s)
	if padLen := padding - len(s); padLen > 0 {
		return styled + strings.Repeat(" ", padLen)
	}
	return styled
}

const usageTemplate = `{{ styleHeading "Usage:" }}
  {{ styleCommand .UseLine }}{{if .HasAvailableSubCommands}} [command]{{end}}
{{if .HasAvailableSubCommands}}
{{ styleHeading "Commands:" }}{{range .Commands}}{{if .IsAvailableCommand}}
  {{rpadStyled .Name .NamePadding }}  {{.Short}}{{end}}{{end}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

const helpTemplate = `{{if .Long}}{{.Long}}

{{else if .Short}}{{.Short}}

{{end}}{{ styleHeading "Usage:" }}
  {{ styleCommand .UseLine }}{{if .HasAvailableSubCommands}} [command]{{end}}
{{if .HasExample}}
{{ styleHeading "Examples:" }}
{{.Example}}
{{end}}{{if .HasAvailableSubCommands}}
{{ styleHeading "Commands:" }}{{range .Commands}}{{if .IsAvailableCommand}}
  {{rpadStyled .Name .NamePadding }}  {{.Short}}{{end}}{{end}}
{{end}}{{if .HasAvailableLocalFlags}}
{{ styleHeading "Options:" }}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableInheritedFlags}}
{{ styleHeading "Global Options:" }}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableSubCommands}}
Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`
