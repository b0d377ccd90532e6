package fingerprint

import (
	"math/rand"
	"testing"
)

func sampleFiles() []File {
	return []File{
		{Name: "paperA.pdf", ContentHash: Content([]byte("alpha"))},
		{Name: "paperB.pdf", ContentHash: Content([]byte("beta"))},
		{Name: "paperC.pdf", ContentHash: Content([]byte("gamma"))},
	}
}

func TestCorpusOrderIndependent(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	want := Corpus(files)

	for n := 0; n < 10; n++ {
		shuffled := make([]File, len(files))
		copy(shuffled, files)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if got := Corpus(shuffled); got != want {
			t.Fatalf("permuted corpus fingerprint %q != %q", got, want)
		}
	}
}

func TestCorpusSensitivity(t *testing.T) {
	t.Parallel()

	base := Corpus(sampleFiles())

	t.Run("content change", func(t *testing.T) {
		t.Parallel()
		files := sampleFiles()
		files[1].ContentHash = Content([]byte("beta v2"))
		if Corpus(files) == base {
			t.Fatal("fingerprint unchanged after content change")
		}
	})

	t.Run("file removed", func(t *testing.T) {
		t.Parallel()
		if Corpus(sampleFiles()[:2]) == base {
			t.Fatal("fingerprint unchanged after removing a file")
		}
	})

	t.Run("file added", func(t *testing.T) {
		t.Parallel()
		files := append(sampleFiles(), File{Name: "paperD.pdf", ContentHash: Content([]byte("delta"))})
		if Corpus(files) == base {
			t.Fatal("fingerprint unchanged after adding a file")
		}
	})

	t.Run("rename only", func(t *testing.T) {
		t.Parallel()
		files := sampleFiles()
		files[0].Name = "renamed.pdf"
		if Corpus(files) == base {
			t.Fatal("fingerprint unchanged after rename")
		}
	})
}

func TestConfigHashDeterministic(t *testing.T) {
	t.Parallel()

	type cfg struct {
		Model string `json:"model"`
		TopK  int    `json:"top_k"`
	}

	a, err := Config(cfg{Model: "gpt-x", TopK: 8})
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	b, err := Config(cfg{Model: "gpt-x", TopK: 8})
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if a != b {
		t.Fatalf("identical configs hash differently: %q != %q", a, b)
	}

	c, err := Config(cfg{Model: "gpt-x", TopK: 16})
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if a == c {
		t.Fatal("different configs hash identically")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantStrict string
		wantLoose  string
	}{
		{"What is the sample size?", "What is the sample size?", "what is the sample size"},
		{"  What   is\tthe sample size? ", "What is the sample size?", "what is the sample size"},
		{"WHAT IS THE SAMPLE SIZE", "WHAT IS THE SAMPLE SIZE", "what is the sample size"},
	}

	for _, tt := range tests {
		if got := NormalizeStrict(tt.in); got != tt.wantStrict {
			t.Errorf("NormalizeStrict(%q) = %q, want %q", tt.in, got, tt.wantStrict)
		}
		if got := NormalizeLoose(tt.in); got != tt.wantLoose {
			t.Errorf("NormalizeLoose(%q) = %q, want %q", tt.in, got, tt.wantLoose)
		}
	}
}

func TestAnswerKeys(t *testing.T) {
	t.Parallel()

	strict := AnswerKey("What is the sample size?", "doc1", "m1", 8, "ctx1")

	// Whitespace variants share the strict key.
	if got := AnswerKey(" What  is the sample size? ", "doc1", "m1", 8, "ctx1"); got != strict {
		t.Fatalf("whitespace variant changed strict key")
	}

	// Context changes the strict key but not the fallback key.
	if AnswerKey("What is the sample size?", "doc1", "m1", 8, "ctx2") == strict {
		t.Fatal("context hash not part of strict key")
	}
	fb1 := FallbackKey("What is the sample size?", "doc1", "m1")
	fb2 := FallbackKey("what is the sample size", "doc1", "m1")
	if fb1 != fb2 {
		t.Fatal("case/punctuation variant changed fallback key")
	}

	// Different papers never share keys.
	if FallbackKey("What is the sample size?", "doc2", "m1") == fb1 {
		t.Fatal("fallback key ignores paper identity")
	}
}

func TestDomainSeparation(t *testing.T) {
	t.Parallel()

	// The same underlying strings must not collide across hash families.
	if DocID("x") == Content([]byte("x")) {
		t.Fatal("doc id collides with content hash")
	}
	if StageKey("a", "b", "c") == ChunkID("a", 0, 0, "c") {
		t.Fatal("stage key collides with chunk id")
	}
}

func TestChunkIDOffsets(t *testing.T) {
	t.Parallel()

	doc := DocID("paperA.pdf")
	a := ChunkID(doc, 0, 512, "h1")
	b := ChunkID(doc, 512, 1024, "h1")
	if a == b {
		t.Fatal("chunk id ignores offsets")
	}
	if ChunkID(doc, 0, 512, "h1") != a {
		t.Fatal("chunk id not deterministic")
	}
}
