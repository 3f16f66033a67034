package services

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildVectorSearchPipeline(t *testing.T) {
	vector := []float32{0.1, 0.2, 0.3}
	pipeline := buildVectorSearchPipeline("chunks_vector", vector, 5)
	if len(pipeline) != 2 {
		t.Fatalf("pipeline has %d stages, want 2", len(pipeline))
	}

	search, ok := pipeline[0][0].Value.(bson.M)
	if !ok || pipeline[0][0].Key != "$vectorSearch" {
		t.Fatalf("first stage is %q, want $vectorSearch", pipeline[0][0].Key)
	}
	if search["index"] != "chunks_vector" {
		t.Errorf("index = %v", search["index"])
	}
	if search["limit"] != 5 {
		t.Errorf("limit = %v, want 5", search["limit"])
	}
	if search["numCandidates"] != 50 {
		t.Errorf("numCandidates = %v, want 10x limit", search["numCandidates"])
	}
	if search["path"] != "vector" {
		t.Errorf("path = %v", search["path"])
	}

	project, ok := pipeline[1][0].Value.(bson.M)
	if !ok || pipeline[1][0].Key != "$project" {
		t.Fatalf("second stage is %q, want $project", pipeline[1][0].Key)
	}
	score, ok := project["score"].(bson.M)
	if !ok || score["$meta"] != "vectorSearchScore" {
		t.Errorf("score projection = %v", project["score"])
	}
}

func TestIndexDimension(t *testing.T) {
	cases := []struct {
		name    string
		idx     bson.M
		wantDim int
		wantOK  bool
	}{
		{
			name: "int32 dimension",
			idx: bson.M{"latestDefinition": bson.M{"fields": bson.A{
				bson.M{"type": "vector", "numDimensions": int32(768)},
			}}},
			wantDim: 768,
			wantOK:  true,
		},
		{
			name: "float64 dimension after json round trip",
			idx: bson.M{"latestDefinition": bson.M{"fields": bson.A{
				bson.M{"type": "filter", "path": "document_id"},
				bson.M{"type": "vector", "numDimensions": float64(1536)},
			}}},
			wantDim: 1536,
			wantOK:  true,
		},
		{
			name:   "missing definition",
			idx:    bson.M{"name": "chunks_vector"},
			wantOK: false,
		},
		{
			name: "no vector field",
			idx: bson.M{"latestDefinition": bson.M{"fields": bson.A{
				bson.M{"type": "filter", "path": "document_id"},
			}}},
			wantOK: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dim, ok := indexDimension(tc.idx)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && dim != tc.wantDim {
				t.Errorf("dim = %d, want %d", dim, tc.wantDim)
			}
		})
	}
}

func TestVectorStoreUnconfigured(t *testing.T) {
	s := &VectorStore{}
	if s.IsAvailable() {
		t.Error("zero-value store reports available")
	}
	if hits := s.Search(context.Background(), []float32{1}, 5, 0.7); hits != nil {
		t.Errorf("unconfigured search returned %v, want nil", hits)
	}
	if err := s.Delete(context.Background(), []string{"a"}); err == nil {
		t.Error("unconfigured delete must propagate an error")
	}
	if err := s.DeleteDocument(context.Background(), "doc"); err == nil {
		t.Error("unconfigured document delete must propagate an error")
	}
}
