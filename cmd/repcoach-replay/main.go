// Command repcoach-replay runs exported session recordings back through
// the engine offline. Useful for re-counting a session after tuning
// changes, spot-checking feedback, and uploading recordings to the web
// frontend.
package main

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/internal/api"
	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/parser"
	"github.com/repcoach/engine/internal/session"
	"github.com/repcoach/engine/pkg/core"
)

var (
	configDir  = flag.String("config", ".", "directory containing repcoach.cfg.json")
	reportPath = flag.String("out", "", "write the replayed summary as JSON to this path")
	doUpload   = flag.Bool("upload", false, "upload the recording to the web frontend after replay")
	verbose    = flag.Bool("v", false, "print every counted rep and coaching cue")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: repcoach-replay [flags] recording.json[.gz]...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "warn", nil)
	logger := slogManager.Logger()

	// Stamp every log line with the session currently being replayed.
	current := session.NewContext()
	slogManager.SetContext(func() []slog.Attr {
		s, ok := current.Get()
		if !ok {
			return nil
		}
		return []slog.Attr{
			slog.String("session", s.ID),
			slog.String("exercise", string(s.Exercise)),
		}
	})

	if err := config.Load(*configDir); err != nil {
		logger.Warn("Failed to load config, using defaults", "error", err)
	}

	p := parser.NewParser(logger, "replay", viper.GetString("defaultTag"))

	exitCode := 0
	for _, path := range flag.Args() {
		if err := replayFile(logger, p, current, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func replayFile(logger *slog.Logger, p *parser.Parser, current *session.Context, path string) error {
	rec, err := readRecording(p, path)
	if err != nil {
		return err
	}
	current.Set(rec.Session)
	defer current.Clear()

	summary, err := replay(rec)
	if err != nil {
		return err
	}

	if rec.Summary != nil && rec.Summary.RepCount != summary.RepCount {
		logger.Warn("Replay disagrees with recorded score",
			"recorded", rec.Summary.RepCount, "replayed", summary.RepCount)
	}

	printReport(path, rec, summary)

	if *reportPath != "" {
		if err := writeReport(*reportPath, summary); err != nil {
			return fmt.Errorf("error writing report: %w", err)
		}
		fmt.Println("Wrote report to", *reportPath)
	}

	if *doUpload {
		if err := upload(path, rec.Session, summary); err != nil {
			return fmt.Errorf("error uploading recording: %w", err)
		}
		fmt.Println("Uploaded", path)
	}

	return nil
}

func readRecording(p *parser.Parser, path string) (core.Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return core.Recording{}, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return core.Recording{}, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return p.ParseRecording(r)
}

// replay feeds every recorded frame through a fresh analyzer built from
// the configured tuning, so the counts reflect the current settings
// rather than the ones the session ran with.
func replay(rec core.Recording) (core.SessionSummary, error) {
	cfg := config.GetAnalyzerConfig(rec.Session.Exercise)
	an, err := analyzer.New(rec.Session.Exercise, cfg)
	if err != nil {
		return core.SessionSummary{}, err
	}

	recorder := session.NewRecorder(rec.Session)
	lastTime := 0.0

	for i, frame := range rec.Frames {
		lastTime = frame.RelativeTime

		result, err := an.ProcessFrame(frame)
		if err != nil {
			var missing *core.MissingLandmarkError
			if errors.As(err, &missing) {
				recorder.ObserveSkipped()
				if *verbose {
					fmt.Printf("  [%7.2fs] skipped frame %d: missing %s\n",
						frame.RelativeTime, i, missing.Landmark)
				}
				continue
			}
			return core.SessionSummary{}, fmt.Errorf("frame %d: %w", i, err)
		}

		recorder.Observe(result)

		if *verbose {
			for _, cue := range result.NewFeedback {
				fmt.Printf("  [%7.2fs] %s\n", cue.RelativeTime, cue.Message)
			}
			if result.CompletedRep != nil {
				fmt.Printf("  [%7.2fs] rep %d counted (%.2fs, min angle %.1f)\n",
					frame.RelativeTime,
					result.CompletedRep.Index,
					result.CompletedRep.Duration,
					result.CompletedRep.MinAngle)
			}
		}
	}

	endedAt := rec.Session.StartedAt.Add(time.Duration(lastTime * float64(time.Second)))
	if rec.Session.StartedAt.IsZero() {
		endedAt = time.Now()
	}
	return recorder.Summary(endedAt), nil
}

func printReport(path string, rec core.Recording, summary core.SessionSummary) {
	fmt.Printf("%s: %s", path, rec.Session.Exercise)
	if rec.Session.Subject != "" {
		fmt.Printf(" (%s)", rec.Session.Subject)
	}
	fmt.Printf("\n  frames:  %d processed, %d skipped\n", summary.FrameCount, summary.SkippedBad)
	fmt.Printf("  reps:    %d\n", summary.RepCount)
	fmt.Printf("  time:    %.1fs\n", summary.Duration)
	for _, msg := range summary.Feedback {
		fmt.Printf("  cue:     %s\n", msg)
	}
}

func writeReport(path string, summary core.SessionSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func upload(path string, sess core.Session, summary core.SessionSummary) error {
	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	return client.Upload(path, core.UploadMetadata{
		SessionID: sess.ID,
		Exercise:  string(sess.Exercise),
		Subject:   sess.Subject,
		Duration:  summary.Duration,
		RepCount:  summary.RepCount,
		Tag:       sess.Tag,
	})
}
