// Command m3d-stats scans every Mobius3D plan check and prints MU and beam
// energy utilization statistics per treatment modality.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrsinham/mobiuskit/internal/app"
	"github.com/mrsinham/mobiuskit/internal/console"
	"github.com/mrsinham/mobiuskit/internal/prompt"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := prompt.NewConfig()
	if err := prompt.Run(prompt.StatsForm(cfg)); err != nil {
		return exitCode(err)
	}

	log := console.NewLogger(os.Stderr, slog.LevelInfo)
	fmt.Println(console.TitleStyle.Render("Mobius3D MU and energy statistics"))

	// Ctrl+C stops the scan; the statistics gathered so far are still printed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	_, report, err := app.Stats(ctx, cfg, os.Stdout, log)
	stop()
	if err != nil {
		return exitCode(err)
	}

	var path string
	if err := prompt.Run(prompt.ReportForm(&path)); err != nil {
		return exitCode(err)
	}
	if path == "" {
		return 0
	}
	if err := report.SaveYAML(path); err != nil {
		return exitCode(err)
	}
	fmt.Println(console.SuccessStyle.Render("✓ Statistics saved to " + path))
	return 0
}

func exitCode(err error) int {
	if errors.Is(err, prompt.ErrAborted) {
		return 0
	}
	fmt.Fprintln(os.Stderr, console.ErrorStyle.Render(fmt.Sprintf("Error: %v", err)))
	return 1
}
