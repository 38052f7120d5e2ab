package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kartetris.ai/internal/client"
	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/sim/sched"
	"kartetris.ai/internal/sim/tuning"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/ws", "relay ws url")
		name       = flag.String("name", "bot", "player name")
		character  = flag.String("character", "mario", "player character")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in tuning)")
		stepMS     = flag.Int("step_ms", 120, "autopilot key interval in milliseconds")
		logMode    = flag.String("log", os.Getenv("KT_LOG_MODE"), "log mode: dev, prod or silent")
	)
	flag.Parse()

	mode, err := logging.ParseMode(*logMode)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	logger := logging.New(mode).With("component", "bot", "name", *name)
	fatal := func(msg string, err error) {
		logger.Error(msg, "err", err)
		os.Exit(1)
	}

	tu := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		if tu, err = tuning.Load(tp); err != nil {
			fatal("load tuning", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := sched.NewLoop(0)
	go func() { _ = loop.Run(ctx) }()

	conn, err := client.Dial(ctx, *url, logger)
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	sess, err := client.New(client.Config{
		PlayerName: *name,
		Character:  *character,
		Tuning:     tu,
		Logger:     logger,
	}, loop, conn)
	if err != nil {
		fatal("session", err)
	}

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- conn.Pump(ctx, loop, sess) }()

	done := make(chan bool, 1)
	var pilot client.Autopilot
	var reported bool
	ticker := loop.Every(time.Duration(*stepMS)*time.Millisecond, func() {
		if reported {
			return
		}
		if won, decided := sess.Result(); decided {
			reported = true
			done <- won
			return
		}
		pilot.Step(sess)
	})
	defer ticker.Cancel()

	logger.Info("waiting for opponent", "url", *url)
	select {
	case <-ctx.Done():
		logger.Info("interrupted")
	case err := <-pumpErr:
		if err != nil {
			logger.Warn("relay connection closed", "err", err)
		}
	case won := <-done:
		var (
			room         string
			score, lines int
		)
		_ = loop.Call(ctx, func() { room, score, lines = sess.RoomID(), sess.Score(), sess.Lines() })
		logger.Info("match over", "room", room, "won", won, "score", score, "lines", lines)
	}
}
