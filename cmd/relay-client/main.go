// ABOUTME: Terminal consumer that follows a stream session from the relay gateway.
// ABOUTME: Folds chunks through the accumulator and auto-resumes after connection drops.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/stream-relay/internal/accumulate"
	"github.com/2389/stream-relay/internal/wire"
)

var (
	gray   = color.New(color.FgHiBlack)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: relay-client <session-key> [--gateway ADDR] [--after N]")
		os.Exit(1)
	}

	sessionKey := os.Args[1]
	gatewayAddr := "localhost:8080"
	var after int64

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --gateway requires a value")
				os.Exit(1)
			}
			gatewayAddr = args[i+1]
			i++
		case "--after":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --after requires a value")
				os.Exit(1)
			}
			parsed, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --after value %q\n", args[i+1])
				os.Exit(1)
			}
			after = parsed
			i++
		default:
			fmt.Fprintf(os.Stderr, "Unknown flag: %s\n", args[i])
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := follow(ctx, gatewayAddr, sessionKey, after); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// follow attaches to the session and renders it, reconnecting from the last
// seen sequence id whenever the connection drops before the session is done.
func follow(ctx context.Context, gatewayAddr, sessionKey string, after int64) error {
	acc := accumulate.New(nil)
	r := newRenderer(acc)
	lastSeen := after

	for {
		done, err := consumeOnce(ctx, gatewayAddr, sessionKey, &lastSeen, r)
		if err != nil {
			return err
		}
		if done {
			r.finish()
			return nil
		}

		gray.Fprintf(os.Stderr, "\n[connection lost, resuming after %d]\n", lastSeen)
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil
		}
	}
}

// consumeOnce runs a single SSE connection. It reports done=true when the
// gateway signals the end of the session, and done=false when the stream
// ended early and a resume should be attempted.
func consumeOnce(ctx context.Context, gatewayAddr, sessionKey string, lastSeen *int64, r *renderer) (bool, error) {
	url := fmt.Sprintf("http://%s/api/sessions/%s/events?after=%d", gatewayAddr, sessionKey, *lastSeen)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, nil // gateway unreachable, retry
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, errors.New("session not found")
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var currentEvent string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(strings.TrimPrefix(line, "id: "), 10, 64); err == nil {
				*lastSeen = id
			}
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if currentEvent == "done" {
				return true, nil
			}
			c, err := wire.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")))
			if err != nil || c == nil {
				continue
			}
			r.render(c)
		}
	}

	if ctx.Err() != nil {
		return true, nil
	}
	return false, nil
}

// renderer prints chunks incrementally, using the accumulator for tool
// names and final stream state.
type renderer struct {
	acc       *accumulate.Accumulator
	reasoning bool
}

func newRenderer(acc *accumulate.Accumulator) *renderer {
	return &renderer{acc: acc}
}

func (r *renderer) render(c wire.Chunk) {
	r.acc.Apply(c)

	switch v := c.(type) {
	case wire.TextDelta:
		r.endReasoning()
		fmt.Print(v.Delta)
	case wire.ReasoningDelta:
		r.reasoning = true
		gray.Print(v.Delta)
	case wire.ToolInputStart:
		r.endReasoning()
		yellow.Printf("\n⚙ %s ", v.ToolName)
	case wire.ToolInputDelta:
		yellow.Print(".")
	case wire.ToolCall:
		yellow.Printf("\n⚙ %s(%s)\n", v.ToolName, compact(v.Input))
	case wire.ToolResult:
		if v.IsError {
			red.Printf("✗ %s\n", compact(v.Output))
		} else {
			green.Printf("✓ %s\n", compact(v.Output))
		}
	case wire.Error:
		r.endReasoning()
		red.Printf("\nerror: %s\n", v.Message)
	}
}

func (r *renderer) endReasoning() {
	if r.reasoning {
		fmt.Println()
		r.reasoning = false
	}
}

// finish prints the end-of-session summary.
func (r *renderer) finish() {
	r.acc.Finalize()
	r.endReasoning()
	fmt.Println()

	if reason := r.acc.FinishReason(); reason != "" {
		gray.Printf("[%s", reason)
		if usage := r.acc.Usage(); usage != nil {
			gray.Printf(", %d in / %d out", usage.InputTokens, usage.OutputTokens)
		}
		gray.Println("]")
	}
}

// compact truncates long JSON payloads for single-line display.
func compact(raw []byte) string {
	s := string(raw)
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
