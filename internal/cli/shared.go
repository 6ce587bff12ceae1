package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/teamcutter/gportal/internal/domain"
	"github.com/teamcutter/gportal/internal/progress"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

// errReported marks a failure whose details were already printed.
var errReported = errors.New("command failed")

func printErr(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n", dim("hint:"), hint)
	}
}

func hintFor(err error) string {
	var ee *domain.ExtractError
	switch {
	case errors.As(err, &ee) && ee.ExitCode == -1:
		return "is the archiver installed? set archiver.tool = \"builtin\" in config.toml to use the bundled one"
	case errors.Is(err, domain.ErrNotFound):
		return "run `gportal search <query>` to find the exact title"
	case errors.Is(err, domain.ErrExecutableNotFound):
		return "set launcher.suffix in config.toml or reinstall the game"
	case errors.Is(err, domain.ErrJobInProgress):
		return "another install of this game is still running"
	}
	return ""
}

func humanBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}

func withSpinner(ctx context.Context, desc string) (stop func()) {
	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
				spinner.Add(1)
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		spinner.Finish()
	}
}

func newDownloadBar(title string, total int64, attempt int) *progressbar.ProgressBar {
	desc := fmt.Sprintf("Downloading %s", title)
	if attempt > 1 {
		desc += fmt.Sprintf(" (attempt %d)", attempt)
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

// renderBar draws one job as a progress bar followed by an extraction
// spinner. It returns the terminal event.
func renderBar(ctx context.Context, s *progress.Stream, title string) domain.ProgressEvent {
	var (
		bar         *progressbar.ProgressBar
		attempt     int
		stopSpinner func()
		last        domain.ProgressEvent
	)

	endPhase := func() {
		if bar != nil {
			bar.Finish()
			bar = nil
		}
		if stopSpinner != nil {
			stopSpinner()
			stopSpinner = nil
		}
	}

	for ev := range s.All(context.Background()) {
		last = ev
		switch ev.Status {
		case domain.StatusDownloading:
			if bar == nil || ev.Attempt != attempt {
				endPhase()
				if ev.Attempt > 1 {
					fmt.Printf("%s %s failed, retrying (attempt %d)\n", yellow("!"), title, ev.Attempt)
				}
				attempt = ev.Attempt
				bar = newDownloadBar(title, ev.TotalBytes, ev.Attempt)
			}
			if ev.TotalBytes > 0 && bar.GetMax64() != ev.TotalBytes {
				bar.ChangeMax64(ev.TotalBytes)
			}
			bar.Set64(ev.DownloadedBytes)
		case domain.StatusExtracting:
			endPhase()
			stopSpinner = withSpinner(ctx, fmt.Sprintf("Extracting %s...", title))
		default:
			endPhase()
		}
	}
	endPhase()
	return last
}

// renderLines prints one line per phase change. Used when several jobs run
// at once and bars would overwrite each other.
func renderLines(s *progress.Stream, title string) domain.ProgressEvent {
	var last domain.ProgressEvent
	attempt := 0
	status := domain.Status("")

	for ev := range s.All(context.Background()) {
		if ev.Status == status && ev.Attempt == attempt {
			last = ev
			continue
		}
		switch ev.Status {
		case domain.StatusDownloading:
			if ev.Attempt > 1 {
				fmt.Printf("%s %s retrying (attempt %d)\n", yellow("!"), title, ev.Attempt)
			} else {
				fmt.Printf("%s %s downloading\n", dim("↓"), title)
			}
		case domain.StatusExtracting:
			fmt.Printf("%s %s extracting (%s)\n", dim("↳"), title, humanBytes(ev.DownloadedBytes))
		}
		status, attempt, last = ev.Status, ev.Attempt, ev
	}
	return last
}
