package index

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/session"
)

func snapshot(summaries ...string) session.Snapshot {
	var recs []session.Record
	for i, s := range summaries {
		recs = append(recs, session.Record{
			Timestamp:   "2025-01-02T03:04:0" + string(rune('0'+i)) + "Z",
			Fingerprint: string(rune('a' + i)),
			Summary:     s,
		})
	}
	return session.NewSnapshot("s1", recs)
}

func TestBuild_EmptyIsAbsent(t *testing.T) {
	stub := provider.NewStubProvider()
	idx, err := Build(context.Background(), stub, snapshot())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if idx != nil {
		t.Error("Expected nil index for empty session")
	}
	if _, embed, _ := stub.Calls(); embed != 0 {
		t.Errorf("Expected no embedding call, got %d", embed)
	}
	if idx.Len() != 0 {
		t.Error("Expected nil index to report zero length")
	}
}

func TestBuild_RejectsLiveSession(t *testing.T) {
	log := session.NewLog("live")
	_, err := Build(context.Background(), provider.NewStubProvider(), log.Snapshot())
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("Expected ErrIncomplete, got %v", err)
	}
}

func TestBuild_OneBatchedCall(t *testing.T) {
	stub := provider.NewStubProvider()
	idx, err := Build(context.Background(), stub, snapshot("editing go code", "reading email", "watching a video"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if idx.Len() != 3 || idx.Dim() != provider.StubDimension {
		t.Errorf("Unexpected index shape %d x %d", idx.Len(), idx.Dim())
	}
	if _, embed, _ := stub.Calls(); embed != 1 {
		t.Errorf("Expected 1 embedding call, got %d", embed)
	}
}

func TestSearch_SelfRetrieval(t *testing.T) {
	summaries := []string{"editing go code in vim", "reading email in firefox", "slides for the quarterly review"}
	idx, err := Build(context.Background(), provider.NewStubProvider(), snapshot(summaries...))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i := range summaries {
		hits, err := idx.Search(idx.Vector(i), 1)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 1 || hits[0].Position != i {
			t.Errorf("Expected record %d to retrieve itself, got %+v", i, hits)
		}
		if hits[0].Distance > 1e-9 {
			t.Errorf("Expected zero distance, got %v", hits[0].Distance)
		}
	}
}

func TestSearch_OrderAndTies(t *testing.T) {
	idx, err := New([][]float32{
		{2, 0}, // 0: distance 4
		{1, 0}, // 1: distance 1
		{0, 1}, // 2: distance 1, tie with 1
		{0, 0}, // 3: distance 0
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for run := 0; run < 5; run++ {
		hits, _ := idx.Search([]float32{0, 0}, 3)
		want := []int{3, 1, 2}
		if len(hits) != len(want) {
			t.Fatalf("Expected %d hits, got %d", len(want), len(hits))
		}
		for i, h := range hits {
			if h.Position != want[i] {
				t.Fatalf("run %d: expected positions %v, got %+v", run, want, hits)
			}
		}
	}

	hits, _ := idx.Search([]float32{0, 0}, 10)
	if len(hits) != 4 {
		t.Errorf("Expected k to be capped at index size, got %d", len(hits))
	}
}

func TestNew_DimensionMismatch(t *testing.T) {
	if _, err := New([][]float32{{1, 2}, {1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}

	idx, _ := New([][]float32{{1, 2}})
	if _, err := idx.Search([]float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch on query, got %v", err)
	}
}

func TestBuild_EmbedderError(t *testing.T) {
	stub := provider.NewStubProvider()
	stub.Errors = map[string]error{"embed": errors.New("quota")}
	if _, err := Build(context.Background(), stub, snapshot("a")); err == nil {
		t.Error("Expected embedding error")
	}
}
