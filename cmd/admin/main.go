package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kartetris.ai/internal/persistence/scoredb"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "ranking":
			rankingCmd(os.Args[2:])
			return
		case "adjust":
			adjustCmd(os.Args[2:])
			return
		case "delete":
			deleteCmd(os.Args[2:])
			return
		case "matches":
			matchesCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	rankingCmd(os.Args[1:])
}

var printer = message.NewPrinter(language.English)

func openStore(path string) *scoredb.Store {
	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(os.Stderr, "missing -db")
		os.Exit(2)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	st, err := scoredb.Open(path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	return st
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func rankingCmd(args []string) {
	fs := flag.NewFlagSet("ranking", flag.ExitOnError)
	dbPath := fs.String("db", "./data/scores.sqlite", "ranking database path")
	limit := fs.Int("limit", 10, "number of players")
	_ = fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()
	ctx, cancel := timeout()
	defer cancel()

	top, err := st.TopScores(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ranking:", err)
		os.Exit(1)
	}
	rows := make([][]string, 0, len(top))
	for i, e := range top {
		rows = append(rows, []string{printer.Sprintf("%d", i+1), e.PlayerName, printer.Sprintf("%d", e.Score)})
	}
	fmt.Print(fmtTable([]string{"#", "Player", "Score"}, rows))
}

func adjustCmd(args []string) {
	fs := flag.NewFlagSet("adjust", flag.ExitOnError)
	dbPath := fs.String("db", "./data/scores.sqlite", "ranking database path")
	name := fs.String("name", "", "player name")
	delta := fs.Int("delta", 0, "points to add (negative to subtract)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "missing -name")
		os.Exit(2)
	}
	st := openStore(*dbPath)
	defer st.Close()
	ctx, cancel := timeout()
	defer cancel()

	if err := st.Adjust(ctx, *name, *delta); err != nil {
		fmt.Fprintln(os.Stderr, "adjust:", err)
		os.Exit(1)
	}
	printer.Printf("%s %+d\n", *name, *delta)
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	dbPath := fs.String("db", "./data/scores.sqlite", "ranking database path")
	name := fs.String("name", "", "player name")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "missing -name")
		os.Exit(2)
	}
	st := openStore(*dbPath)
	defer st.Close()
	ctx, cancel := timeout()
	defer cancel()

	ok, err := st.Delete(ctx, *name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "delete:", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "no such player:", *name)
		os.Exit(1)
	}
	fmt.Println("deleted", *name)
}

func matchesCmd(args []string) {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	dbPath := fs.String("db", "./data/scores.sqlite", "ranking database path")
	limit := fs.Int("limit", 20, "number of matches")
	_ = fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()
	ctx, cancel := timeout()
	defer cancel()

	ms, err := st.RecentMatches(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "matches:", err)
		os.Exit(1)
	}
	rows := make([][]string, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, []string{
			m.RecordedAt.Local().Format(time.DateTime),
			m.RoomID,
			m.WinnerName,
			printer.Sprintf("%d", m.WinnerScore),
			m.LooserName,
			printer.Sprintf("%d", m.LooserScore),
			m.Reason,
		})
	}
	fmt.Print(fmtTable([]string{"Time", "Room", "Winner", "Score", "Looser", "Score", "Reason"}, rows))
}
