package scorer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hashedsearch/retrieval-platform/internal/builder"
	"github.com/hashedsearch/retrieval-platform/internal/corpus"
	"github.com/hashedsearch/retrieval-platform/internal/idf"
	"github.com/hashedsearch/retrieval-platform/internal/index"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

func buildIndex(t testing.TB, minDocFreq int, docs []corpus.Document) *index.Index {
	t.Helper()
	b, err := builder.New(config.IndexConfig{
		Buckets:      1 << 24,
		MinDocFreq:   minDocFreq,
		BuildWorkers: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	ix, _, err := b.Build(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func cityCorpus() []corpus.Document {
	return []corpus.Document{
		{ID: "D1", Title: "Tabriz", Tokens: []string{"tabriz", "iran"}},
		{ID: "D2", Title: "Tabriz rug", Tokens: []string{"tabriz", "carpet"}},
		{ID: "D3", Title: "Paris", Tokens: []string{"paris", "france"}},
	}
}

func TestScoreRanksMatchingDocuments(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Score(context.Background(), []string{"tabriz"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %v", len(results), results)
	}
	// D1 and D2 both contain tabriz once, so they tie on score and the
	// document-ID tie-break puts D1 first. D3 shares no bucket with the
	// query and must be absent.
	if results[0].DocID != "D1" || results[1].DocID != "D2" {
		t.Errorf("order = [%s %s], want [D1 D2]", results[0].DocID, results[1].DocID)
	}
	if results[0].Score != results[1].Score {
		t.Errorf("scores differ: %v vs %v, want equal", results[0].Score, results[1].Score)
	}
	want := idf.Weight(2, 3) // tf=1 on both sides, df(tabriz)=2, N=3
	if math.Abs(results[0].Score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", results[0].Score, want)
	}
	if results[0].Title != "Tabriz" {
		t.Errorf("title = %q, want %q", results[0].Title, "Tabriz")
	}
}

func TestScoreUnseenTokenYieldsEmpty(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Score(context.Background(), []string{"zanzibar"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("unseen token returned %v, want empty", results)
	}
}

func TestScoreEmptyQueryYieldsEmpty(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Score(context.Background(), nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("empty query returned %v, want empty", results)
	}
}

func TestScoreSuppressedTermYieldsEmpty(t *testing.T) {
	// With minDocFreq above every df, all buckets are suppressed: every
	// document vector is empty and no query can match anything.
	ix := buildIndex(t, 10, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Score(context.Background(), []string{"tabriz"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("fully suppressed index returned %v, want empty", results)
	}
}

func TestScoreHonorsK(t *testing.T) {
	docs := make([]corpus.Document, 0, 10)
	for i := 0; i < 10; i++ {
		id := string(rune('A' + i))
		tokens := []string{"common"}
		for j := 0; j <= i; j++ {
			tokens = append(tokens, "common")
		}
		docs = append(docs, corpus.Document{ID: id, Tokens: tokens})
	}
	ix := buildIndex(t, 1, docs)
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Score(context.Background(), []string{"common"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Highest term frequency wins; doc J has tf=11, I has 10, H has 9.
	for i, want := range []string{"J", "I", "H"} {
		if results[i].DocID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].DocID, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order at %d", i)
		}
	}
}

func TestScoreKLargerThanMatches(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Score(context.Background(), []string{"paris"}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DocID != "D3" {
		t.Errorf("results = %v, want just D3", results)
	}
}

func TestScoreRejectsNonPositiveK(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []int{0, -1} {
		if _, err := s.Score(context.Background(), []string{"tabriz"}, k); !errors.Is(err, apperrors.ErrInvalidConfig) {
			t.Errorf("k=%d: error = %v, want ErrInvalidConfig", k, err)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Score(context.Background(), []string{"tabriz", "carpet"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	for run := 0; run < 50; run++ {
		got, err := s.Score(context.Background(), []string{"tabriz", "carpet"}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(first) {
			t.Fatalf("run %d: %d results, want %d", run, len(got), len(first))
		}
		for i := range first {
			if got[i] != first[i] {
				t.Fatalf("run %d: results[%d] = %+v, want %+v", run, i, got[i], first[i])
			}
		}
	}
}

func TestScoreCancelledContext(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	s, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Score(ctx, []string{"tabriz"}, 2); err == nil {
		t.Error("Score with cancelled context should fail")
	}
}

func TestShardedMatchesUnsharded(t *testing.T) {
	docs := []corpus.Document{
		{ID: "D1", Tokens: []string{"tabriz", "iran", "tabriz"}},
		{ID: "D2", Tokens: []string{"tabriz", "carpet"}},
		{ID: "D3", Tokens: []string{"paris", "france"}},
		{ID: "D4", Tokens: []string{"iran", "carpet", "paris"}},
		{ID: "D5", Tokens: []string{"tabriz", "france"}},
		{ID: "D6", Tokens: []string{"carpet", "carpet", "carpet"}},
	}
	ix := buildIndex(t, 1, docs)
	single, err := New(ix)
	if err != nil {
		t.Fatal(err)
	}

	queries := [][]string{
		{"tabriz"},
		{"tabriz", "carpet"},
		{"iran", "paris", "france"},
		{"zanzibar"},
	}
	for _, parts := range []int{1, 2, 3, 4} {
		sharded, err := NewSharded(index.Split(ix, parts), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		for _, q := range queries {
			want, err := single.Score(context.Background(), q, 4)
			if err != nil {
				t.Fatal(err)
			}
			got, err := sharded.Score(context.Background(), q, 4)
			if err != nil {
				t.Fatalf("parts=%d q=%v: %v", parts, q, err)
			}
			if len(got) != len(want) {
				t.Fatalf("parts=%d q=%v: %d results, want %d (%v vs %v)", parts, q, len(got), len(want), got, want)
			}
			for i := range want {
				if got[i].DocID != want[i].DocID || math.Abs(got[i].Score-want[i].Score) > 1e-12 {
					t.Fatalf("parts=%d q=%v: results[%d] = %+v, want %+v", parts, q, i, got[i], want[i])
				}
			}
		}
	}
}

func TestNewShardedRejectsMixedBucketCounts(t *testing.T) {
	a := index.New(1<<24, 1, nil, nil)
	b := index.New(1<<20, 1, nil, nil)
	if _, err := NewSharded([]*index.Index{a, b}, time.Second); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewShardedRejectsNoPartitions(t *testing.T) {
	if _, err := NewSharded(nil, time.Second); !errors.Is(err, apperrors.ErrIndexUnavailable) {
		t.Errorf("error = %v, want ErrIndexUnavailable", err)
	}
}

func TestShardedRejectsNonPositiveK(t *testing.T) {
	ix := buildIndex(t, 1, cityCorpus())
	sharded, err := NewSharded(index.Split(ix, 2), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sharded.Score(context.Background(), []string{"tabriz"}, 0); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func BenchmarkScore(b *testing.B) {
	docs := make([]corpus.Document, 1000)
	terms := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	for i := range docs {
		tokens := make([]string, 0, 6)
		for j := 0; j < 6; j++ {
			tokens = append(tokens, terms[(i+j)%len(terms)])
		}
		docs[i] = corpus.Document{ID: string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + string(rune('a'+i/676)), Tokens: tokens}
	}
	ix := buildIndex(b, 1, docs)
	s, err := New(ix)
	if err != nil {
		b.Fatal(err)
	}
	query := []string{"alpha", "delta"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Score(context.Background(), query, 10); err != nil {
			b.Fatal(err)
		}
	}
}
