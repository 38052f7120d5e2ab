package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"

	"kartetris.ai/internal/persistence/matchlog"
	"kartetris.ai/internal/sim/encoding"
)

func main() {
	var (
		dir        = flag.String("dir", "./data/matchlog", "match log directory containing matches-*.jsonl.zst")
		roomID     = flag.String("room", "", "only replay this room (optional)")
		boards     = flag.Bool("boards", false, "print the last logged board of each player (requires -room)")
		noProgress = flag.Bool("quiet", false, "disable the progress bar")
	)
	flag.Parse()

	files, err := matchlog.ListFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list match logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no match logs in", *dir)
		os.Exit(1)
	}
	if *boards && *roomID == "" {
		fmt.Fprintln(os.Stderr, "-boards requires -room")
		os.Exit(2)
	}

	sum := matchlog.NewSummary()
	last := map[string]*encoding.Compact{}
	entries := 0

	var bar *pb.ProgressBar
	if !*noProgress {
		bar = pb.StartNew(len(files))
	}
	for _, path := range files {
		err := matchlog.ReadFile(path, func(e matchlog.Entry) error {
			if *roomID != "" && e.Room != *roomID {
				return nil
			}
			entries++
			sum.Add(e)
			if e.Board != nil && e.Name != "" {
				last[e.Name] = e.Board
			}
			return nil
		})
		if bar != nil {
			bar.Increment()
		}
		if err != nil {
			if bar != nil {
				bar.Finish()
			}
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	rooms := sum.Rooms()
	fmt.Printf("files=%d entries=%d rooms=%d\n", len(files), entries, len(rooms))
	for _, r := range rooms {
		outcome := "unfinished"
		if r.Finished {
			outcome = fmt.Sprintf("winner=%s looser=%s", r.WinnerName, r.LooserName)
			if r.Reason != "" {
				outcome += " reason=" + r.Reason
			}
		}
		fmt.Printf("%s players=%s updates=%d max_step=%d duration=%s %s\n",
			r.Room, strings.Join(r.Players, ","), r.Updates, r.MaxStep, r.End.Sub(r.Start).Round(time.Millisecond), outcome)
		if len(r.Scores) > 0 {
			fmt.Printf("  scores: %s\n", formatCounts(r.Scores))
		}
		if len(r.Effects) > 0 {
			fmt.Printf("  effects: %s\n", formatCounts(r.Effects))
		}
	}

	if !*boards {
		return
	}
	names := make([]string, 0, len(last))
	for n := range last {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		grid, err := last[n].Expand()
		if err != nil {
			fmt.Fprintf(os.Stderr, "board of %s: %v\n", n, err)
			continue
		}
		fmt.Printf("\n%s:\n%s", n, render(grid))
	}
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// render draws a color grid, # for filled cells.
func render(grid [][]string) string {
	var b strings.Builder
	for _, row := range grid {
		b.WriteByte('|')
		for _, c := range row {
			if c == "" {
				b.WriteByte('.')
				continue
			}
			b.WriteByte('#')
		}
		b.WriteString("|\n")
	}
	return b.String()
}
