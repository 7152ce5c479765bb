// Command m3d-download saves the data files of every completed Mobius3D plan
// check of the matching patients into one folder per plan name.
//
// Plan checks sharing a plan name share a folder: clashing file names are
// overwritten by the check processed last. RTDOSE files and the check report
// are named uniquely by the server and never clash.
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
	if err := prompt.Run(prompt.DownloadForm(cfg)); err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log := console.NewLogger(os.Stderr, slog.LevelInfo)
	fmt.Println(console.TitleStyle.Render("Mobius3D plan check download"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := app.Download(ctx, cfg, os.Stdout, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, console.ErrorStyle.Render(fmt.Sprintf("Error: %v", err)))
		return 1
	}

	fmt.Println(console.SuccessStyle.Render(fmt.Sprintf("\n✓ Download complete: %d files from %d plans of %d patients",
		len(res.Files), res.Plans, res.Patients)))
	fmt.Printf("  Destination: %s\n", cfg.DestDir)
	return 0
}
