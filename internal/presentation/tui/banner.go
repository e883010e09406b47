package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"  __ _            _           _   ",
	" / _(_)_ __   ___| |__   __ _| |_ ",
	"| |_| | '_ \\ / __| '_ \\ / _` | __|",
	"|  _| | | | | (__| | | | (_| | |_ ",
	"|_| |_|_| |_|\\___|_| |_|\\__,_|\\__|",
}

// Teal to green.
var bannerColors = []string{"#2dd4bf", "#34d399", "#4ade80", "#a3e635", "#facc15"}

// PrintBanner writes the finchat banner, coloured when the terminal supports it.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w)
}

// Prompt returns the coloured input prompt.
func Prompt() string {
	p := termenv.ColorProfile()
	return termenv.String("> ").Foreground(p.Color("#2dd4bf")).Bold().String()
}
