package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/transport/observer"
)

type httpOptions struct {
	EnableAdmin bool
	EnablePprof bool
}

func (rt *worldRuntime) routes(opts httpOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.handleMetrics)

	if opts.EnableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/sites", loopbackOnly(rt.handleSites))
		mux.HandleFunc("/admin/v1/chunks/load", loopbackOnly(postOnly(rt.handleLoadChunks)))
		mux.HandleFunc("/admin/v1/drain", loopbackOnly(postOnly(rt.handleDrain)))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(postOnly(rt.handleSnapshot)))
		mux.HandleFunc("/admin/v1/observer/bootstrap", rt.hub.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", rt.hub.WSHandler())
	} else {
		rt.log.Printf("admin endpoints disabled (WT_ENABLE_ADMIN_HTTP=false)")
	}
	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

type siteView struct {
	registry.Site
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}

// handleSites lists sites in one state from the live registry, or from the
// sqlite index with source=index. Without a state it reports counts and
// built towers.
func (rt *worldRuntime) handleSites(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	limit, _ := strconv.Atoi(q.Get("limit"))

	if q.Get("source") == "index" {
		if rt.idx == nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "index disabled"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		rows, err := rt.idx.Sites(ctx, state, limit)
		if err != nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "source": "index", "sites": rows})
		return
	}

	reg := rt.session.Registry()
	if state == "" {
		writeJSON(rw, http.StatusOK, map[string]any{
			"ok":     true,
			"counts": reg.Counts(),
			"towers": rt.session.Towers(),
		})
		return
	}
	st, ok := registry.ParseState(state)
	if !ok {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": fmt.Sprintf("unknown state %q", state)})
		return
	}
	sites := reg.List(st)
	if limit > 0 && len(sites) > limit {
		sites = sites[:limit]
	}
	out := make([]siteView, 0, len(sites))
	for _, s := range sites {
		out = append(out, siteView{Site: s, State: st.String(), Attempts: reg.Attempts(s.Pos)})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "source": "registry", "sites": out})
}

func (rt *worldRuntime) handleLoadChunks(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cx, err1 := strconv.Atoi(q.Get("cx"))
	cz, err2 := strconv.Atoi(q.Get("cz"))
	if err1 != nil || err2 != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "cx and cz are required integers"})
		return
	}
	radius := 0
	if v := q.Get("r"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 32 {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "r must be in [0,32]"})
			return
		}
		radius = n
	}
	n := rt.chunks.LoadRadius(cx, cz, radius)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "loaded": n, "total": rt.chunks.LoadedCount()})
}

func (rt *worldRuntime) handleDrain(rw http.ResponseWriter, r *http.Request) {
	res := rt.session.Drain()
	writeJSON(rw, http.StatusOK, map[string]any{
		"ok":        true,
		"built":     res.Built,
		"reclaimed": res.Reclaimed,
		"rejected":  res.Rejected,
	})
}

func (rt *worldRuntime) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	path, err := rt.saveSnapshot(time.Now())
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func (rt *worldRuntime) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	id := rt.cfg.WorldID
	m := rt.session.Metrics()

	gauge := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
	}

	// Minimal Prometheus exposition format.
	gauge("wizardtowers_sites", "Sites in the registry by state.")
	fmt.Fprintf(rw, "wizardtowers_sites{world=%q,state=%q} %d\n", id, "pending", m.Registry.Pending)
	fmt.Fprintf(rw, "wizardtowers_sites{world=%q,state=%q} %d\n", id, "checking", m.Registry.Checking)
	fmt.Fprintf(rw, "wizardtowers_sites{world=%q,state=%q} %d\n", id, "built", m.Registry.Built)
	fmt.Fprintf(rw, "wizardtowers_sites{world=%q,state=%q} %d\n", id, "rejected", m.Registry.Rejected)

	counter("wizardtowers_session_total", "Session counters.")
	for _, kv := range []struct {
		name string
		v    uint64
	}{
		{"candidates", m.Candidates},
		{"added", m.Added},
		{"duplicates", m.Duplicates},
		{"inbox_overflow", m.InboxOverflow},
		{"built", m.Built},
		{"reclaimed", m.Reclaimed},
		{"rejected", m.Rejected},
		{"drains", m.Drains},
		{"stitch_errors", m.StitchErrors},
		{"sink_errors", m.SinkErrors},
	} {
		fmt.Fprintf(rw, "wizardtowers_session_total{world=%q,metric=%q} %d\n", id, kv.name, kv.v)
	}

	counter("wizardtowers_stitch_total", "Stitcher counters.")
	fmt.Fprintf(rw, "wizardtowers_stitch_total{world=%q,metric=%q} %d\n", id, "delivered", m.Stitch.Delivered)
	fmt.Fprintf(rw, "wizardtowers_stitch_total{world=%q,metric=%q} %d\n", id, "ignored", m.Stitch.Ignored)
	fmt.Fprintf(rw, "wizardtowers_stitch_total{world=%q,metric=%q} %d\n", id, "quads", m.Stitch.Quads)
	fmt.Fprintf(rw, "wizardtowers_stitch_total{world=%q,metric=%q} %d\n", id, "evicted", m.Stitch.Evicted)

	gauge("wizardtowers_stitch_stored_regions", "Regions held by the stitcher.")
	fmt.Fprintf(rw, "wizardtowers_stitch_stored_regions{world=%q} %d\n", id, m.Stitch.Stored)

	counter("wizardtowers_regions_generated_total", "Regions sampled by the generation pipeline.")
	fmt.Fprintf(rw, "wizardtowers_regions_generated_total{world=%q} %d\n", id, rt.pipeline.Generated())

	gauge("wizardtowers_loaded_chunks", "Loaded chunk count.")
	fmt.Fprintf(rw, "wizardtowers_loaded_chunks{world=%q} %d\n", id, rt.chunks.LoadedCount())

	gauge("wizardtowers_observer_sessions", "Connected observer sessions.")
	fmt.Fprintf(rw, "wizardtowers_observer_sessions{world=%q} %d\n", id, rt.hub.Sessions())
	counter("wizardtowers_observer_dropped_total", "Events dropped for slow observers.")
	fmt.Fprintf(rw, "wizardtowers_observer_dropped_total{world=%q} %d\n", id, rt.hub.Dropped())

	if rt.idx != nil {
		s := rt.idx.Stats()
		gauge("wizardtowers_index_queue_depth", "Index writer queue depth.")
		fmt.Fprintf(rw, "wizardtowers_index_queue_depth{world=%q} %d\n", id, s.QueueDepth)
		gauge("wizardtowers_index_queue_capacity", "Index writer queue capacity.")
		fmt.Fprintf(rw, "wizardtowers_index_queue_capacity{world=%q} %d\n", id, s.QueueCapacity)
		counter("wizardtowers_index_dropped_total", "Index writes dropped on a full queue.")
		fmt.Fprintf(rw, "wizardtowers_index_dropped_total{world=%q,kind=%q} %d\n", id, "event", s.DropEventTotal)
		fmt.Fprintf(rw, "wizardtowers_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
		counter("wizardtowers_index_write_errors_total", "Index write errors.")
		fmt.Fprintf(rw, "wizardtowers_index_write_errors_total{world=%q} %d\n", id, s.WriteErrorTotal)
	}
}
