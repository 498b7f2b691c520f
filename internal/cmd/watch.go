package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codeloom/internal/session"
	"github.com/Iron-Ham/codeloom/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Watch a session on a running server",
	Long: `Attach to a session on a running Codeloom server and display its
progress live. The view catches up from the server's snapshot, so
attaching mid-run shows the full current state.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchServer string

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "base URL of the Codeloom server")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	snapshot, events, err := streamEvents(ctx, watchServer, args[0])
	if err != nil {
		return err
	}

	if _, err := tui.New(snapshot, events, cancel).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// streamEvents opens the server's SSE endpoint for a session. The first
// frame is the session snapshot; the returned channel carries the live
// events that follow and closes when the stream ends.
func streamEvents(ctx context.Context, baseURL, sessionID string) (session.Session, <-chan session.Event, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/events", strings.TrimRight(baseURL, "/"), sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return session.Session{}, nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return session.Session{}, nil, fmt.Errorf("failed to connect to %s: %w", baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return session.Session{}, nil, fmt.Errorf("server returned %s for session %s", resp.Status, sessionID)
	}

	frames := bufio.NewScanner(resp.Body)
	frames.Buffer(make([]byte, 0, 64*1024), 1<<20)

	name, data, err := nextFrame(frames)
	if err != nil || name != "snapshot" {
		resp.Body.Close()
		return session.Session{}, nil, fmt.Errorf("expected snapshot frame, got %q: %w", name, err)
	}
	var snapshot session.Session
	if err := json.Unmarshal(data, &snapshot); err != nil {
		resp.Body.Close()
		return session.Session{}, nil, fmt.Errorf("malformed snapshot: %w", err)
	}

	events := make(chan session.Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		for {
			_, data, err := nextFrame(frames)
			if err != nil {
				return
			}
			var ev session.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return snapshot, events, nil
}

// nextFrame reads one SSE frame (event name + data payload). A blank
// line terminates each frame.
func nextFrame(s *bufio.Scanner) (name string, data []byte, err error) {
	for s.Scan() {
		line := s.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: ")...)
		case line == "" && len(data) > 0:
			return name, data, nil
		}
	}
	if err := s.Err(); err != nil {
		return "", nil, err
	}
	return "", nil, fmt.Errorf("event stream closed")
}
