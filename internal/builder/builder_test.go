package builder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hashedsearch/retrieval-platform/internal/corpus"
	"github.com/hashedsearch/retrieval-platform/internal/idf"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

func testConfig() config.IndexConfig {
	return config.IndexConfig{
		Buckets:      1 << 24,
		MinDocFreq:   0,
		BuildWorkers: 2,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Buckets = 0
	if _, err := New(cfg); err == nil {
		t.Error("New should reject zero buckets")
	}

	cfg = testConfig()
	cfg.MinDocFreq = -1
	if _, err := New(cfg); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("New with negative minDocFreq: error = %v, want ErrInvalidConfig", err)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	b, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Build(context.Background(), nil); !errors.Is(err, apperrors.ErrEmptyCorpus) {
		t.Errorf("Build(empty) error = %v, want ErrEmptyCorpus", err)
	}
}

func TestBuildTFIDFWeights(t *testing.T) {
	b, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	docs := []corpus.Document{
		{ID: "D1", Title: "one", Tokens: []string{"tabriz", "tabriz", "iran"}},
		{ID: "D2", Title: "two", Tokens: []string{"tabriz", "carpet"}},
		{ID: "D3", Title: "three", Tokens: []string{"paris", "france"}},
	}
	ix, stats, err := b.Build(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if ix.DocCount() != 3 || stats.Docs != 3 {
		t.Fatalf("DocCount = %d, stats.Docs = %d, want 3", ix.DocCount(), stats.Docs)
	}

	vec := b.Vectorizer()
	entry, ok := ix.Docs()["D1"]
	if !ok {
		t.Fatal("D1 missing from document table")
	}
	// tfidf[b] = tf[b] * idf[b], with df(tabriz)=2 and df(iran)=1 over N=3.
	wantTabriz := 2 * idf.Weight(2, 3)
	wantIran := 1 * idf.Weight(1, 3)
	if got := entry.TFIDF.Get(vec.Bucket("tabriz")); math.Abs(got-wantTabriz) > 1e-12 {
		t.Errorf("D1 tfidf(tabriz) = %v, want %v", got, wantTabriz)
	}
	if got := entry.TFIDF.Get(vec.Bucket("iran")); math.Abs(got-wantIran) > 1e-12 {
		t.Errorf("D1 tfidf(iran) = %v, want %v", got, wantIran)
	}
	if entry.Title != "one" {
		t.Errorf("D1 title = %q, want %q", entry.Title, "one")
	}
}

func TestBuildSuppressedBucketsVanish(t *testing.T) {
	cfg := testConfig()
	cfg.MinDocFreq = 2
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	docs := []corpus.Document{
		{ID: "D1", Tokens: []string{"tabriz", "iran"}},
		{ID: "D2", Tokens: []string{"tabriz", "carpet"}},
	}
	ix, stats, err := b.Build(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}

	vec := b.Vectorizer()
	// Only tabriz (df=2) survives the threshold; iran and carpet (df=1) are
	// suppressed and must not appear in any document vector.
	if stats.ActiveBuckets != 1 {
		t.Errorf("ActiveBuckets = %d, want 1", stats.ActiveBuckets)
	}
	if stats.SuppressedBuckets != 2 {
		t.Errorf("SuppressedBuckets = %d, want 2", stats.SuppressedBuckets)
	}
	for id, entry := range ix.Docs() {
		if _, ok := entry.TFIDF[vec.Bucket("iran")]; ok {
			t.Errorf("%s stores a suppressed bucket (iran)", id)
		}
		if _, ok := entry.TFIDF[vec.Bucket("carpet")]; ok {
			t.Errorf("%s stores a suppressed bucket (carpet)", id)
		}
		if len(entry.TFIDF) != 1 {
			t.Errorf("%s tfidf has %d entries, want 1", id, len(entry.TFIDF))
		}
	}
	if got := ix.Postings(vec.Bucket("iran")); len(got) != 0 {
		t.Errorf("postings for suppressed bucket = %v, want none", got)
	}
}

func TestBuildDeterministicAcrossWorkerCounts(t *testing.T) {
	docs := []corpus.Document{
		{ID: "D1", Tokens: []string{"a", "b", "c"}},
		{ID: "D2", Tokens: []string{"b", "c", "d"}},
		{ID: "D3", Tokens: []string{"c", "d", "e"}},
		{ID: "D4", Tokens: []string{"a", "e"}},
	}
	cfg := testConfig()
	cfg.BuildWorkers = 1
	b1, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ref, _, err := b1.Build(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{2, 4, 16} {
		cfg.BuildWorkers = workers
		b, err := New(cfg)
		if err != nil {
			t.Fatal(err)
		}
		ix, _, err := b.Build(context.Background(), docs)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		for id, want := range ref.Docs() {
			got, ok := ix.Docs()[id]
			if !ok {
				t.Fatalf("workers=%d: %s missing", workers, id)
			}
			if len(got.TFIDF) != len(want.TFIDF) {
				t.Fatalf("workers=%d: %s has %d buckets, want %d", workers, id, len(got.TFIDF), len(want.TFIDF))
			}
			for bucket, w := range want.TFIDF {
				if got.TFIDF.Get(bucket) != w {
					t.Fatalf("workers=%d: %s tfidf[%d] = %v, want %v", workers, id, bucket, got.TFIDF.Get(bucket), w)
				}
			}
		}
	}
}

func TestBuildCancelledContext(t *testing.T) {
	b, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs := []corpus.Document{{ID: "D1", Tokens: []string{"a"}}}
	if _, _, err := b.Build(ctx, docs); err == nil {
		t.Error("Build with cancelled context should fail")
	}
}
