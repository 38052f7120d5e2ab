package main

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// fmtTable lays rows out under headers, padding by display width so wide
// player names keep the columns straight.
func fmtTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i := range widths {
			if i < len(r) {
				if w := runewidth.StringWidth(r[i]); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var b strings.Builder
	divider := "+"
	for _, w := range widths {
		divider += strings.Repeat("-", w+2) + "+"
	}
	divider += "\n"

	line := func(cells []string) {
		b.WriteString("|")
		for i, w := range widths {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			b.WriteString(" ")
			b.WriteString(runewidth.FillRight(c, w))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	b.WriteString(divider)
	line(headers)
	b.WriteString(divider)
	for _, r := range rows {
		line(r)
	}
	if len(rows) > 0 {
		b.WriteString(divider)
	}
	return b.String()
}
