// ABOUTME: HTTP API handlers for feeding and following stream sessions.
// ABOUTME: Producers POST NDJSON chunks; consumers GET the session as SSE with a resume offset.

package gateway

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/stream-relay/internal/stream"
	"github.com/2389/stream-relay/internal/wire"
)

// IngestResponse is the JSON response for POST /api/sessions/{key}/events.
type IngestResponse struct {
	SessionKey string `json:"session_key"`
	Events     int64  `json:"events"`
}

// handleSessionRoutes dispatches /api/sessions/{key}/... requests.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionKey := parts[0]

	switch parts[1] {
	case "events":
		switch r.Method {
		case http.MethodPost:
			g.handleIngest(w, r, sessionKey)
		case http.MethodGet:
			g.handleFollow(w, r, sessionKey)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "complete":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.manager.Complete(r.Context(), sessionKey)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// handleIngest registers a session and feeds it from an NDJSON request body,
// one chunk envelope per line. The session completes when the body ends.
func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request, sessionKey string) {
	producer := make(chan wire.Chunk)
	out := g.manager.Create(r.Context(), sessionKey, producer)

	// The live consumer channel must not back up the pump; SSE followers
	// get their own subscriptions via Resume. The channel closes only after
	// the session is fully recorded, so waiting on it below guarantees the
	// response isn't written before the buffer is.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range out {
		}
	}()

	var count int64
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c, err := wire.Unmarshal(line)
		if err != nil {
			close(producer)
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("malformed chunk at line %d: %v", count+1, err))
			return
		}
		if c == nil {
			continue
		}
		producer <- c
		count++
	}
	close(producer)
	<-drained

	if err := scanner.Err(); err != nil {
		g.logger.Debug("producer body ended early", "session_key", sessionKey, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(IngestResponse{SessionKey: sessionKey, Events: count})
}

// handleFollow serves the session as Server-Sent Events. The "after" query
// parameter skips chunks already seen, so a dropped consumer can resume
// where it left off.
func (g *Gateway) handleFollow(w http.ResponseWriter, r *http.Request, sessionKey string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid after offset")
			return
		}
		after = parsed
	}

	s, err := g.manager.Resume(r.Context(), sessionKey, after)
	if errors.Is(err, stream.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Resumable", strconv.FormatBool(s.Resumable))
	flusher.Flush()

	seq := after
	for c := range s.Events {
		payload, err := wire.Marshal(c)
		if err != nil {
			continue
		}
		seq++
		fmt.Fprintf(w, "id: %d\n", seq)
		fmt.Fprintf(w, "event: chunk\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

// writeJSONError writes a JSON error response with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
