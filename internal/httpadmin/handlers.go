// Package httpadmin exposes the tunnel pool's HTTP surface: the two
// minimal list handlers, plus a supplemented human-readable status page
// and an admin API for adding, deleting, and listing tunnels.
package httpadmin

import (
	"encoding/json"
	"net/http"

	"github.com/koltyakov/tunnelpool/internal/pool"
)

// ActiveHandler serves tunnels-active.html: an <option> per active tunnel.
func ActiveHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		p.RenderList(w, true)
	}
}

// AllHandler serves tunnels-all.html: an <option> per cached tunnel.
func AllHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		p.RenderList(w, false)
	}
}

// StatusHandler serves tunnels-status.html: a human-readable table of every
// cached tunnel's state, age, and weight. It supplements ActiveHandler and
// AllHandler rather than replacing either one.
func StatusHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		RenderStatus(w, p.Snapshots(false))
	}
}

// AddHandler accepts a POST with a "url" form value and calls Pool.Add,
// giving the CLI's add subcommand a way to reach a running daemon's
// control API over HTTP.
func AddHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		url := r.FormValue("url")
		if url == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		if err := p.Add(r.Context(), url); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// DeleteHandler accepts a POST with a "url" form value and calls
// Pool.Delete.
func DeleteHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		url := r.FormValue("url")
		if url == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		p.Delete(url)
		w.WriteHeader(http.StatusAccepted)
	}
}

// SnapshotsHandler serves the active or cached set as JSON, giving the
// CLI's list subcommand a structured feed instead of scraping the
// <option> renderer meant for the browser-facing dropdown.
func SnapshotsHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := r.URL.Query().Get("set") == "active"
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Snapshots(active)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
