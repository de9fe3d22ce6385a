package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`  _____     _     _`, "#818cf8"},
	{` |  ___|_ _| |__ | | ___`, "#a78bfa"},
	{" | |_ / _` | '_ \\| |/ _ \\", "#c084fc"},
	{` |  _| (_| | |_) | |  __/`, "#e879f9"},
	{` |_|  \__,_|_.__/|_|\___|`, "#f472b6"},
}

// PrintBanner writes the Fable banner to w. Colors are dropped when w is not
// a color-capable terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
