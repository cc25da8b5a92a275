package commands

import (
	"os"

	"github.com/fatih/color"
)

func init() {
	// Keep colors when piped; NO_COLOR still disables them.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)
