package indexer

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
)

func benchDoc(i int) map[string]string {
	return map[string]string{
		"doc_id":           fmt.Sprint(i + 1),
		"title":            "boundary layer flow over a flat plate",
		"contentSubstance": fmt.Sprintf("experimental study %d of turbulent boundary layer flow at supersonic mach numbers", i),
	}
}

func buildBenchEngine(b *testing.B, docs int) *Engine {
	b.Helper()
	e, err := NewEngine(index.Options{}, nil)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < docs; i++ {
		if _, err := e.AddDocument(benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
	if _, err := e.Finalize(); err != nil {
		b.Fatal(err)
	}
	return e
}

// BenchmarkAddDocument measures per-document insert throughput.
func BenchmarkAddDocument(b *testing.B) {
	e, err := NewEngine(index.Options{}, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.AddDocument(benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	e := buildBenchEngine(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Search(flowQuery, 10); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchParallel measures concurrent read throughput on one store.
func BenchmarkSearchParallel(b *testing.B) {
	e := buildBenchEngine(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := e.Search(flowQuery, 10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
