package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>navsense</title></head>
<body>
<h1>navsense</h1>
<p>API: <a href="/api/location">/api/location</a> · <a href="/api/status">/api/status</a> · <a href="/api/logs?format=text">/api/logs</a></p>
<pre id="out">waiting for readings…</pre>
<script>
const out = document.getElementById("out");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/ws");
ws.onmessage = (ev) => { out.textContent = JSON.stringify(JSON.parse(ev.data), null, 2); };
ws.onclose = () => { out.textContent += "\n[stream closed]"; };
</script>
</body></html>
`

func Handler(src Source, status *Status, logs *LogBuffer) http.Handler {
	h, _ := newHandler(src, status, logs)
	return h
}

func newHandler(src Source, status *Status, logs *LogBuffer) (http.Handler, *streamHub) {
	if status == nil {
		status = NewStatus()
	}
	hub := &streamHub{src: src}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/location", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeJSON(w, lastKnown(src))
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC(), src, hub.clients.Load()))
	})

	mux.HandleFunc("/api/ws", hub.serveWS)

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	return mux, hub
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func Serve(ctx context.Context, listenAddr string, src Source, status *Status, logs *LogBuffer) error {
	handler, hub := newHandler(src, status, logs)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}
	srv.RegisterOnShutdown(hub.closeAll)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
