package indexer

import (
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
)

var flowQuery = query.Term{Term: "flow", Fields: []string{"contentSubstance"}}

func newTestEngine(t *testing.T, segmentMaxSize int64) (*Engine, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	e, err := NewEngine(index.Options{SegmentMaxSize: segmentMaxSize}, m)
	if err != nil {
		t.Fatal(err)
	}
	return e, m
}

func addDocs(t *testing.T, e *Engine) {
	t.Helper()
	for _, text := range []string{"turbulent boundary layer flow", "laminar flow analysis", "supersonic wing"} {
		if _, err := e.AddDocument(map[string]string{"contentSubstance": text}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLifecycle(t *testing.T) {
	e, m := newTestEngine(t, 0)
	if e.State() != StateEmpty {
		t.Fatalf("new engine state = %s", e.State())
	}
	if _, err := e.Search(flowQuery, 10); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("search on empty engine = %v, want ErrIndexNotReady", err)
	}

	addDocs(t, e)
	if e.State() != StateBuilding {
		t.Fatalf("state after add = %s", e.State())
	}
	if _, err := e.Search(flowQuery, 10); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("search while building = %v, want ErrIndexNotReady", err)
	}
	if err := e.Compact(); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("compact while building = %v", err)
	}
	if _, err := e.Save(filepath.Join(t.TempDir(), "x.spdx")); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("save while building = %v", err)
	}

	store, err := e.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if e.State() != StateReady || e.Store() != store {
		t.Fatalf("state after finalize = %s", e.State())
	}
	hits, err := e.Search(flowQuery, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %v", hits)
	}

	if _, err := e.Finalize(); !errors.Is(err, apperrors.ErrAlreadyFinalized) {
		t.Errorf("second finalize = %v, want ErrAlreadyFinalized", err)
	}
	if _, err := e.AddDocument(map[string]string{"title": "late"}); !errors.Is(err, apperrors.ErrAlreadyFinalized) {
		t.Errorf("add after finalize = %v, want ErrAlreadyFinalized", err)
	}
	again, err := e.Search(flowQuery, 10)
	if err != nil || !reflect.DeepEqual(again, hits) {
		t.Errorf("search after double finalize = %v, %v", again, err)
	}

	if got := testutil.ToFloat64(m.DocsIndexedTotal); got != 3 {
		t.Errorf("docs_indexed_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.IndexOperations.WithLabelValues("finalize", "error")); got != 1 {
		t.Errorf("failed finalize count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IndexDocuments); got != 3 {
		t.Errorf("index_documents = %v, want 3", got)
	}
}

func TestFinalizeEmptyEngine(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	store, err := e.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if !store.Ready() || store.NumDocs() != 0 {
		t.Errorf("expected an empty ready store")
	}
	hits, err := e.Search(flowQuery, 10)
	if err != nil || len(hits) != 0 {
		t.Errorf("search on empty index = %v, %v", hits, err)
	}
}

func TestRejectedDocumentKeepsState(t *testing.T) {
	e, m := newTestEngine(t, 0)
	if _, err := e.AddDocument(map[string]string{"title": "\xff"}); !errors.Is(err, apperrors.ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
	if e.State() != StateEmpty {
		t.Errorf("rejected document moved the engine to %s", e.State())
	}
	if got := testutil.ToFloat64(m.DocsRejectedTotal); got != 1 {
		t.Errorf("docs_rejected_total = %v", got)
	}
}

func TestCompactSaveOpen(t *testing.T) {
	e, m := newTestEngine(t, 1)
	addDocs(t, e)
	if got := testutil.ToFloat64(m.SegmentsSealedTotal); got != 3 {
		t.Errorf("segments sealed = %v, want 3", got)
	}
	if _, err := e.Finalize(); err != nil {
		t.Fatal(err)
	}
	before, err := e.Search(flowQuery, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	if e.Store().Segments() != 1 {
		t.Errorf("segments after compact = %d", e.Store().Segments())
	}
	after, err := e.Search(flowQuery, 10)
	if err != nil || !reflect.DeepEqual(before, after) {
		t.Errorf("compaction changed ranking: %v vs %v (%v)", before, after, err)
	}

	path := filepath.Join(t.TempDir(), "cranfield.spdx")
	if _, err := e.Save(path); err != nil {
		t.Fatal(err)
	}
	opened, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if opened.State() != StateReady {
		t.Errorf("opened engine state = %s", opened.State())
	}
	loaded, err := opened.Search(flowQuery, 10)
	if err != nil || !reflect.DeepEqual(loaded, before) {
		t.Errorf("loaded index ranks differently: %v vs %v (%v)", loaded, before, err)
	}
	if _, err := opened.AddDocument(map[string]string{"title": "x"}); !errors.Is(err, apperrors.ErrAlreadyFinalized) {
		t.Errorf("add on opened engine = %v", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.spdx"), nil); err == nil {
		t.Error("expected error opening a missing file")
	}
}

func TestReplace(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	if err := e.Replace(&index.Store{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("replace with unready store = %v", err)
	}
	other, _ := newTestEngine(t, 0)
	if _, err := other.AddDocument(map[string]string{"contentSubstance": "flow"}); err != nil {
		t.Fatal(err)
	}
	replacement, err := other.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Replace(replacement); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("replace on empty engine = %v", err)
	}
	addDocs(t, e)
	if _, err := e.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := e.Replace(replacement); err != nil {
		t.Fatal(err)
	}
	if e.Store().Generation() != replacement.Generation() {
		t.Errorf("store not swapped")
	}
}

func TestConcurrentSearchDuringCompact(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	addDocs(t, e)
	if _, err := e.Finalize(); err != nil {
		t.Fatal(err)
	}
	want, err := e.Search(flowQuery, 10)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Search(flowQuery, 10)
			if err != nil {
				errs <- err
				return
			}
			if !reflect.DeepEqual(got, want) {
				errs <- errors.New("ranking changed during compaction")
			}
		}()
	}
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
