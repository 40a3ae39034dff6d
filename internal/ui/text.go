package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Formatter renders one kind of output. With color disabled it falls back
// to the prefix and suffix decorations.
type Formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f Formatter) render(text string) string {
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

// Sprint formats the arguments like fmt.Sprint.
func (f Formatter) Sprint(a ...any) string {
	return f.render(fmt.Sprint(a...))
}

// Sprintf formats like fmt.Sprintf.
func (f Formatter) Sprintf(format string, a ...any) string {
	return f.render(fmt.Sprintf(format, a...))
}

// EnsureNewline ensures the string ends with a newline character.
func EnsureNewline(s string) string {
	if !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}

// Field renders an aligned "label: value" line for detail views.
func Field(label string, value string) string {
	return fmt.Sprintf("  %-14s %s\n", label+":", value)
}

// noColor honours NO_COLOR (https://no-color.org/) and fatih/color's own
// terminal detection.
func noColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}
	return color.NoColor
}

var (
	// Code formats commands, `backticked` without color.
	Code = Formatter{color.New(color.FgYellow), "`", "`"}

	Path = Formatter{color.New(color.FgYellow), "", ""}

	Flag = Formatter{color.New(color.FgYellow), "", ""}

	Success = Formatter{color.New(color.FgGreen), "", ""}

	Error = Formatter{color.New(color.FgRed), "", ""}

	Warning = Formatter{color.New(color.FgYellow), "", ""}

	Info = Formatter{color.New(color.FgCyan), "", ""}

	// Highlight formats identities and IDs, 'quoted' without color.
	Highlight = Formatter{color.New(color.FgCyan), "'", "'"}

	// Muted formats secondary text, (parenthesised) without color.
	Muted = Formatter{color.New(color.FgHiBlack), "(", ")"}

	// Sender formats the author of a message, <angled> without color.
	Sender = Formatter{color.New(color.FgMagenta, color.Bold), "<", ">"}

	// Unreadable formats messages that could not be decrypted.
	Unreadable = Formatter{color.New(color.FgRed, color.Italic), "", ""}
)
