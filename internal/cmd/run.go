package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codeloom/internal/archive"
	"github.com/Iron-Ham/codeloom/internal/orchestrator"
	"github.com/Iron-Ham/codeloom/internal/session"
	"github.com/Iron-Ham/codeloom/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <project description>",
	Short: "Generate a project from a description",
	Long: `Run the full generation pipeline for a single project description,
watch its progress live, and write the result as a ZIP archive in the
current directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runModel       string
	runTemperature float64
	runPlain       bool
	runNoZip       bool
)

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "model name (overrides config)")
	runCmd.Flags().Float64Var(&runTemperature, "temperature", -1, "sampling temperature (overrides config)")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print progress lines instead of the TUI")
	runCmd.Flags().BoolVar(&runNoZip, "no-zip", false, "skip writing the ZIP archive")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := orchestrator.SubmitOptions{Model: runModel}
	if runTemperature >= 0 {
		opts.Temperature = &runTemperature
	}

	s, err := a.orch.Submit(strings.Join(args, " "), opts)
	if err != nil {
		return err
	}

	snapshot, events, cancel, err := a.registry.Subscribe(s.ID)
	if err != nil {
		return err
	}

	if runPlain {
		watchPlain(snapshot, events)
		cancel()
	} else {
		if _, err := tui.New(snapshot, events, cancel).Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
	}

	// The user may have detached before the pipeline finished.
	a.orch.Wait()
	final, err := a.registry.Get(s.ID)
	if err != nil {
		return err
	}

	if final.Status == session.StatusError && final.Error != nil {
		return fmt.Errorf("generation failed at %s stage: %s", final.Error.Stage, final.Error.Reason)
	}

	if dir, err := a.store.SessionDir(s.ID); err == nil {
		fmt.Printf("generated %d file(s) under %s\n", len(final.TouchedFiles), dir)
	}

	if runNoZip {
		return nil
	}
	zipPath, err := writeArchive(a, final)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", zipPath)
	return nil
}

// watchPlain prints each event as a log line until the stream closes.
func watchPlain(snapshot session.Session, events <-chan session.Event) {
	fmt.Printf("session %s (%s)\n", snapshot.ID, snapshot.Status)
	for ev := range events {
		switch ev.Type {
		case session.EventStageStarted:
			fmt.Printf("[%d] stage %s started\n", ev.Seq, ev.Stage)
		case session.EventStageCompleted:
			fmt.Printf("[%d] stage %s completed\n", ev.Seq, ev.Stage)
		case session.EventFileWritten:
			fmt.Printf("[%d] wrote %s\n", ev.Seq, ev.Path)
		case session.EventSessionCompleted:
			fmt.Printf("[%d] session completed\n", ev.Seq)
		case session.EventSessionError:
			fmt.Printf("[%d] session failed at %s: %s\n", ev.Seq, ev.Stage, ev.Message)
		}
	}
}

// writeArchive zips the session's files into the current directory.
func writeArchive(a *app, s session.Session) (string, error) {
	name := archive.Filename(s.Prompt, s.ID)
	f, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	if err := archive.WriteZip(f, a.store, s.ID); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	return name, nil
}
