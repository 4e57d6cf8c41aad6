package config

import (
	"strings"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Database.Driver != "memory" {
		t.Errorf("default driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("default dimensions = %d, want 768", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Errorf("default batch size = %d, want 32", cfg.Embedding.BatchSize)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("default top_k = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MinScore != 0.25 {
		t.Errorf("default min_score = %g, want 0.25", cfg.Retrieval.MinScore)
	}
	if cfg.Ingest.MaxChunkChars != 1200 {
		t.Errorf("default max_chunk_chars = %d, want 1200", cfg.Ingest.MaxChunkChars)
	}
	if cfg.Ingest.PaperSplitThreshold != cfg.Ingest.MaxChunkChars {
		t.Errorf("paper_split_threshold = %d, want max_chunk_chars %d",
			cfg.Ingest.PaperSplitThreshold, cfg.Ingest.MaxChunkChars)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{
			HTTP:       HTTPConfig{Port: 8080},
			Embedding:  EmbeddingConfig{Model: "clinical-embed"},
			Generation: GenerationConfig{Model: "gpt-4o-mini"},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid memory driver", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"redis without addrs", func(c *Config) { c.Database.Driver = "redis" }, "database.addrs"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"missing embedding model", func(c *Config) { c.Embedding.Model = "" }, "embedding.model"},
		{"missing generation model", func(c *Config) { c.Generation.Model = "" }, "generation.model"},
		{"redundancy ratio above 1", func(c *Config) { c.Retrieval.RedundancyRatio = 1.5 }, "redundancy_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RAREDEX_TEST_KEY", "sekret")

	in := []byte("api_key: ${RAREDEX_TEST_KEY}\nmodel: ${RAREDEX_UNSET:-clinical-embed}\n")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "api_key: sekret") {
		t.Errorf("env var not expanded: %s", out)
	}
	if !strings.Contains(out, "model: clinical-embed") {
		t.Errorf("default value not applied: %s", out)
	}
}
