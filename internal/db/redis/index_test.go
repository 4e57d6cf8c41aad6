package redis

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/raredex/internal/db"
)

func TestBuildCreateArgs_VectorAlias(t *testing.T) {
	def, err := db.NewIndex("chunk-idx").
		Prefix("chunk:").
		Tag("source_type").
		Vector("__vector", 1536, db.VectorHNSW, db.DistanceCosine).
		As("vector").
		HNSW(16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args, err := buildCreateArgs(def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmd := strings.Join(args, " ")

	// The hash field is stored as __vector but queries address it through the
	// alias, so the schema must bind the two.
	if !strings.Contains(cmd, "__vector AS vector VECTOR HNSW") {
		t.Errorf("schema missing vector alias: %s", cmd)
	}
	if !strings.Contains(cmd, "DISTANCE_METRIC COSINE") {
		t.Errorf("schema missing distance metric: %s", cmd)
	}
	if !strings.Contains(cmd, "M 16") || !strings.Contains(cmd, "EF_CONSTRUCTION 200") {
		t.Errorf("schema missing HNSW params: %s", cmd)
	}
}

func TestBuildFieldArgs_NoAlias(t *testing.T) {
	args, err := buildFieldArgs(&db.IndexField{Name: "source_type", Type: db.IndexFieldTag})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range args {
		if a == "AS" {
			t.Errorf("unexpected AS in args: %v", args)
		}
	}
}
