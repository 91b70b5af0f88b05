package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/searchstack/textsearchd/internal/builder"
	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/scanner"
	"github.com/searchstack/textsearchd/internal/search"
	"github.com/searchstack/textsearchd/internal/tokenizer"
)

type fixture struct {
	mux   *http.ServeMux
	ix    *index.Index
	store *docstore.Store
	jobs  *JobManager
	sched *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ix := index.New(8)
	store := docstore.New()
	tok := tokenizer.New(tokenizer.DefaultConfig())
	sc := scanner.New(scanner.DefaultConfig())
	b := builder.New(ix, store, tok, sc)

	svc := search.NewService(tok, ix, store)
	jobs := NewJobManager(b, ix, "", 2)
	sched := NewScheduler(jobs, false, 30*time.Second)

	h := NewHandler(svc, jobs, sched, ix, nil, 20, 1000)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &fixture{mux: mux, ix: ix, store: store, jobs: jobs, sched: sched}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func (f *fixture) seed(path string, tf map[string]int) {
	id, _ := f.store.GetOrCreate(path, time.Now())
	f.ix.UpsertDocument(id, tf)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed("/data/a.txt", map[string]int{"alpha": 1})

	rec, body := f.do(t, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["ok"] != true || body["building"] != false {
		t.Errorf("body = %v", body)
	}
	ixStats, ok := body["index"].(map[string]any)
	if !ok || ixStats["documents"] != float64(1) {
		t.Errorf("index stats = %v", body["index"])
	}
	if body["scheduler_enabled"] != false || body["scheduler_interval_s"] != float64(30) {
		t.Errorf("scheduler state = %v", body)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed("/data/a.txt", map[string]int{"alpha": 2})
	f.seed("/data/b.txt", map[string]int{"alpha": 1})

	rec, body := f.do(t, http.MethodGet, "/search?q=alpha", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["ok"] != true || body["q"] != "alpha" {
		t.Errorf("body = %v", body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v", body["results"])
	}
	top := results[0].(map[string]any)
	if top["path"] != "/data/a.txt" || top["score"] != float64(2) {
		t.Errorf("top result = %v", top)
	}
}

func TestSearchMissingQueryReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.seed("/data/a.txt", map[string]int{"alpha": 1})

	rec, body := f.do(t, http.MethodGet, "/search", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	results, _ := body["results"].([]any)
	if len(results) != 0 {
		t.Errorf("missing q matched: %v", results)
	}
}

func TestSearchTopKParam(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.seed("/data/"+string(rune('a'+i))+".txt", map[string]int{"common": i + 1})
	}

	_, body := f.do(t, http.MethodGet, "/search?q=common&topk=2", "")
	if results, _ := body["results"].([]any); len(results) != 2 {
		t.Errorf("topk=2 returned %v", body["results"])
	}

	// Unparseable topk falls back to the default.
	_, body = f.do(t, http.MethodGet, "/search?q=common&topk=banana", "")
	if results, _ := body["results"].([]any); len(results) != 5 {
		t.Errorf("bad topk returned %v", body["results"])
	}
}

func TestBuildEndpoint(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, body := f.do(t, http.MethodPost, "/build", `{"dataset_path":"`+root+`","threads":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d body=%v", rec.Code, body)
	}
	if body["ok"] != true || body["started"] != true || body["mode"] != "full" {
		t.Errorf("body = %v", body)
	}

	waitForBuild(t, f.jobs)
	last := f.jobs.Last()
	if last == nil || last.Result.Indexed != 1 || last.Err != "" {
		t.Errorf("last build = %+v", last)
	}
}

func TestBuildBadJSON(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodPost, "/build", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["ok"] != false || body["error"] != "bad_json" {
		t.Errorf("body = %v", body)
	}
}

func TestBuildMissingDataset(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodPost, "/build", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d body=%v", rec.Code, body)
	}
	if body["ok"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestBuildAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	f.jobs.running.Store(true)

	rec, body := f.do(t, http.MethodPost, "/build", `{"dataset_path":"/tmp/whatever"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["ok"] != false || body["error"] != "already_running" {
		t.Errorf("body = %v", body)
	}
}

func TestSchedulerEndpoint(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/scheduler", `{"enabled":true,"interval_s":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["ok"] != true || body["scheduler_enabled"] != true || body["scheduler_interval_s"] != float64(5) {
		t.Errorf("body = %v", body)
	}
	if !f.sched.Enabled() || f.sched.Interval() != 5*time.Second {
		t.Errorf("scheduler state: enabled=%v interval=%v", f.sched.Enabled(), f.sched.Interval())
	}

	rec, body = f.do(t, http.MethodPost, "/scheduler", `{"enabled":false}`)
	if rec.Code != http.StatusOK || body["scheduler_enabled"] != false {
		t.Errorf("disable: code=%d body=%v", rec.Code, body)
	}
}

func TestCacheEndpointsWithoutRedis(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/cache/stats", "")
	if rec.Code != http.StatusOK || body["enabled"] != false {
		t.Errorf("stats: code=%d body=%v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodPost, "/cache/invalidate", "")
	if rec.Code != http.StatusOK || body["enabled"] != false {
		t.Errorf("invalidate: code=%d body=%v", rec.Code, body)
	}
}

func waitForBuild(t *testing.T, jobs *JobManager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !jobs.Running() && jobs.Last() != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("build did not complete in time")
}
