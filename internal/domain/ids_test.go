package domain

import "testing"

func TestDocIDDeterministic(t *testing.T) {
	a := DocID("file-42")
	b := DocID("file-42")
	if a != b {
		t.Fatalf("DocID not deterministic: %q != %q", a, b)
	}
	if a[:4] != "doc_" {
		t.Fatalf("expected doc_ prefix, got %q", a)
	}
	if len(a) != len("doc_")+12 {
		t.Fatalf("expected 12 hex chars after prefix, got %q", a)
	}
}

func TestDocIDDiffersByInput(t *testing.T) {
	if DocID("a") == DocID("b") {
		t.Fatalf("expected different doc ids for different file ids")
	}
}

func TestChunkIDDeterministicOnPosition(t *testing.T) {
	doc := DocID("file-1")
	a := ChunkID(doc, 1, 0, 100)
	b := ChunkID(doc, 1, 0, 100)
	if a != b {
		t.Fatalf("ChunkID not deterministic: %q != %q", a, b)
	}
	if c := ChunkID(doc, 1, 0, 101); c == a {
		t.Fatalf("expected different chunk id when end_char differs")
	}
}

func TestVectorPointIDIsStableAndFits63Bits(t *testing.T) {
	chunkID := ChunkID(DocID("f"), 0, 0, 10)
	a := VectorPointID(chunkID)
	b := VectorPointID(chunkID)
	if a != b {
		t.Fatalf("VectorPointID not stable: %d != %d", a, b)
	}
	if a >= (uint64(1) << 63) {
		t.Fatalf("expected point id to fit in 63 bits, got %d", a)
	}
}
