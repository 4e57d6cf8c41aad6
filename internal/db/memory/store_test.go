package memory

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/kailas-cloud/raredex/internal/db"
)

func vectorField(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func newTestIndex(t *testing.T, s *Store) {
	t.Helper()
	def, err := db.NewIndex("test:idx").
		Prefix("test:doc:").
		Tag("source_type").
		Vector("__vector", 3, db.VectorFlat, db.DistanceCosine).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateIndex(context.Background(), def); err != nil {
		t.Fatal(err)
	}
}

func TestSearchKNNOrdersByScore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	newTestIndex(t, s)

	docs := map[string][]float32{
		"test:doc:a": {1, 0, 0},
		"test:doc:b": {0.9, 0.1, 0},
		"test:doc:c": {0, 1, 0},
	}
	for key, vec := range docs {
		err := s.HSet(ctx, key, map[string]string{
			"__vector":    vectorField(vec),
			"source_type": "disease_feature",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "test:idx",
		Vector:    []float32{1, 0, 0},
		K:         2,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Total != 3 {
		t.Errorf("Total = %d, want 3", res.Total)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(res.Entries))
	}
	if res.Entries[0].Key != "test:doc:a" || res.Entries[1].Key != "test:doc:b" {
		t.Errorf("order = [%s %s], want [test:doc:a test:doc:b]",
			res.Entries[0].Key, res.Entries[1].Key)
	}
	if res.Entries[0].Score < res.Entries[1].Score {
		t.Error("scores not descending")
	}
}

func TestSearchKNNClampsScoreToZero(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	newTestIndex(t, s)

	// Opposite vector: raw cosine similarity is -1.
	err := s.HSet(ctx, "test:doc:a", map[string]string{"__vector": vectorField([]float32{-1, 0, 0})})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "test:idx",
		Vector:    []float32{1, 0, 0},
		K:         1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(res.Entries))
	}
	if res.Entries[0].Score != 0 {
		t.Errorf("Score = %f, want 0", res.Entries[0].Score)
	}
}

func TestSearchKNNTieBreaksByKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	newTestIndex(t, s)

	// Identical vectors — identical scores.
	for _, key := range []string{"test:doc:z", "test:doc:a", "test:doc:m"} {
		err := s.HSet(ctx, key, map[string]string{"__vector": vectorField([]float32{1, 0, 0})})
		if err != nil {
			t.Fatal(err)
		}
	}

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "test:idx",
		Vector:    []float32{1, 0, 0},
		K:         3,
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"test:doc:a", "test:doc:m", "test:doc:z"}
	for i, w := range want {
		if res.Entries[i].Key != w {
			t.Errorf("entry[%d] = %s, want %s", i, res.Entries[i].Key, w)
		}
	}
}

func TestSearchKNNAppliesFilterBeforeRanking(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	newTestIndex(t, s)

	err := s.HSet(ctx, "test:doc:feature", map[string]string{
		"__vector":    vectorField([]float32{1, 0, 0}),
		"source_type": "disease_feature",
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.HSet(ctx, "test:doc:paper", map[string]string{
		"__vector":    vectorField([]float32{1, 0, 0}),
		"source_type": "paper_finding",
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "test:idx",
		Vector:    []float32{1, 0, 0},
		K:         10,
		Filters:   map[string]string{"source_type": "paper_finding"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("got %d entries (total %d), want 1", len(res.Entries), res.Total)
	}
	if res.Entries[0].Key != "test:doc:paper" {
		t.Errorf("key = %s, want test:doc:paper", res.Entries[0].Key)
	}
}

func TestSearchKNNEmptyIndex(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	newTestIndex(t, s)

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "test:idx",
		Vector:    []float32{1, 0, 0},
		K:         5,
	})
	if err != nil {
		t.Fatalf("empty index search must not error, got %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(res.Entries))
	}
}

func TestKVAndJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if _, err := s.Get(ctx, "missing"); err != db.ErrKeyNotFound {
		t.Errorf("Get(missing) = %v, want ErrKeyNotFound", err)
	}

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get = %q, %v", got, err)
	}

	if err := s.JSONSet(ctx, "j", "$", []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	doc, err := s.JSONGet(ctx, "j")
	if err != nil || string(doc) != `{"a":1}` {
		t.Errorf("JSONGet = %q, %v", doc, err)
	}
}

func TestCreateIndexTwice(t *testing.T) {
	s := NewStore()
	newTestIndex(t, s)

	def, _ := db.NewIndex("test:idx").Prefix("test:doc:").Tag("source_type").Build()
	if err := s.CreateIndex(context.Background(), def); err != db.ErrIndexExists {
		t.Errorf("second CreateIndex = %v, want ErrIndexExists", err)
	}
}
