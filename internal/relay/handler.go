package relay

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HandlerOptions tunes the SSE handler.
type HandlerOptions struct {
	// Heartbeat is the interval of comment lines keeping proxies from
	// closing idle streams. Zero disables them.
	Heartbeat    time.Duration
	OnConnect    func()
	OnDisconnect func()
}

// SSEHandler streams broker events. Clients narrow the stream with
// ?session=<id> (broadcast events always pass) and ?types=a,b.
func SSEHandler(broker *Broker, opts HandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		session := strings.TrimSpace(r.URL.Query().Get("session"))
		typeFilter := parseList(r.URL.Query().Get("types"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		// Subscribe before the headers go out so a client that has seen the
		// response misses no event.
		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)
		flusher.Flush()
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		if opts.OnDisconnect != nil {
			defer opts.OnDisconnect()
		}

		var beat <-chan time.Time
		if opts.Heartbeat > 0 {
			ticker := time.NewTicker(opts.Heartbeat)
			defer ticker.Stop()
			beat = ticker.C
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-beat:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if session != "" && evt.Session != "" && evt.Session != session {
					continue
				}
				if typeFilter != nil && !typeFilter[evt.Type] {
					continue
				}
				writeEvent(w, evt)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	for _, line := range strings.Split(evt.Data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func parseList(q string) map[string]bool {
	if q == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, f := range strings.Split(q, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out[f] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
