package metrics

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Endpoint is a route listed on the metrics landing page. Endpoints with a
// Handler are also served by the metrics server; the rest only document
// where the owning service exposes them.
type Endpoint struct {
	// Pattern is a ServeMux pattern such as "GET /health/ready".
	Pattern     string
	Description string
	Handler     http.Handler
}

// StartServer serves /metrics and the endpoints that carry a handler on
// port in the background, and returns its shutdown function.
func StartServer(port int, endpoints ...Endpoint) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newMux(endpoints),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "endpoints", len(endpoints))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

var landing = template.Must(template.New("landing").Parse(`<html><body><h1>fieldsearch</h1>
<h2>served here</h2><ul>
{{range .Served}}<li>{{if .Link}}<a href="{{.Link}}">{{.Pattern}}</a>{{else}}{{.Pattern}}{{end}}{{with .Description}} : {{.}}{{end}}</li>
{{end}}</ul>
{{if .Other}}<h2>service endpoints</h2><ul>
{{range .Other}}<li>{{.Pattern}}{{with .Description}} : {{.}}{{end}}</li>
{{end}}</ul>{{end}}
</body></html>`))

type landingEntry struct {
	Pattern     string
	Description string
	Link        string
}

func newMux(endpoints []Endpoint) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	served := []landingEntry{{Pattern: "GET /metrics", Description: "prometheus scrape target", Link: "/metrics"}}
	var other []landingEntry
	for _, ep := range endpoints {
		entry := landingEntry{Pattern: ep.Pattern, Description: ep.Description}
		if ep.Handler == nil {
			other = append(other, entry)
			continue
		}
		mux.Handle(ep.Pattern, ep.Handler)
		entry.Link = linkFor(ep.Pattern)
		served = append(served, entry)
	}
	byPattern := func(entries []landingEntry) {
		sort.Slice(entries, func(i, j int) bool { return pathOf(entries[i].Pattern) < pathOf(entries[j].Pattern) })
	}
	byPattern(served)
	byPattern(other)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := landing.Execute(w, map[string][]landingEntry{"Served": served, "Other": other}); err != nil {
			slog.Error("rendering metrics landing page", "error", err)
		}
	})
	return mux
}

func pathOf(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		return pattern[i+1:]
	}
	return pattern
}

// linkFor returns a clickable path for plain GET patterns.
func linkFor(pattern string) string {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		path, method = pattern, "GET"
	}
	if method != "GET" || strings.Contains(path, "{") {
		return ""
	}
	return path
}
