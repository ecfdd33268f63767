package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

func mustNew(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	p, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := mustNew(t)
		if p.ChunkSize() != DefaultChunkSize {
			t.Errorf("expected chunkSize %d, got %d", DefaultChunkSize, p.ChunkSize())
		}
		if p.Overlap() != DefaultChunkOverlap {
			t.Errorf("expected overlap %d, got %d", DefaultChunkOverlap, p.Overlap())
		}
	})

	t.Run("custom values", func(t *testing.T) {
		p := mustNew(t, WithChunkSize(500), WithOverlap(100))
		if p.ChunkSize() != 500 || p.Overlap() != 100 {
			t.Errorf("unexpected config size=%d overlap=%d", p.ChunkSize(), p.Overlap())
		}
	})

	invalid := []struct {
		name string
		opts []Option
	}{
		{"overlap equals chunk size", []Option{WithChunkSize(100), WithOverlap(100)}},
		{"overlap exceeds chunk size", []Option{WithChunkSize(100), WithOverlap(150)}},
		{"negative overlap", []Option{WithOverlap(-1)}},
		{"zero chunk size", []Option{WithChunkSize(0)}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestProcessor_Name(t *testing.T) {
	if mustNew(t).Name() != "chunker" {
		t.Error("expected name 'chunker'")
	}
}

func TestSplit_ShortTextUnchanged(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(10))
	text := "  Kısa bir metin.  "

	chunks := p.Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("expected single unchanged chunk, got %q", chunks)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	p := mustNew(t)
	if chunks := p.Split(" \n\t "); chunks != nil {
		t.Errorf("expected no chunks, got %q", chunks)
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(10))

	first := "Bu birinci paragraftır, kısa cümleler içerir. Yine de elli karakteri geçer."
	second := strings.Repeat("İkinci paragraf devam eder, kelimeler sürer. ", 5)
	text := first + "\n\n" + second

	chunks := p.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0] != first {
		t.Errorf("expected first chunk to end at the paragraph break, got %q", chunks[0])
	}
}

func TestSplit_IgnoresBoundaryInFirstHalf(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(10))

	// The only paragraph break sits before the halfway point of the window.
	text := "Başlık\n\n" + strings.Repeat("a", 200)

	chunks := p.Split(text)
	if got := utf8.RuneCountInString(chunks[0]); got != 100 {
		t.Errorf("expected cut at the raw window edge (100 runes), got %d: %q", got, chunks[0])
	}
}

func TestSplit_RawEdgeWithoutSeparators(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(10))

	chunks := p.Split(strings.Repeat("x", 250))

	want := []int{100, 100, 70}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, n := range want {
		if len(chunks[i]) != n {
			t.Errorf("chunk %d: expected %d chars, got %d", i, n, len(chunks[i]))
		}
	}
}

func TestSplit_CountsRunes(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(20))

	chunks := p.Split(strings.Repeat("ğüşiöç", 60))
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
}

func TestSplit_CoversTextWithoutGaps(t *testing.T) {
	p := mustNew(t, WithChunkSize(120), WithOverlap(30))

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Şirket politikası madde ")
		b.WriteString(strings.Repeat("ı", i%7))
		if i%5 == 0 {
			b.WriteString(".\n\n")
		} else {
			b.WriteString(", ")
		}
	}
	text := b.String()

	chunks := p.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	// Every chunk must appear in order, start no later than where the previous
	// one ended, and anything skipped between them must be whitespace.
	covered := 0
	searchFrom := 0
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 120 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		idx := strings.Index(text[searchFrom:], c)
		if idx < 0 {
			t.Fatalf("chunk %d not found in order: %q", i, c)
		}
		idx += searchFrom
		if idx > covered && strings.TrimSpace(text[covered:idx]) != "" {
			t.Fatalf("gap before chunk %d: %q", i, text[covered:idx])
		}
		end := idx + len(c)
		if end > covered {
			covered = end
		}
		searchFrom = idx + 1
	}
	if strings.TrimSpace(text[covered:]) != "" {
		t.Errorf("text after last chunk not covered: %q", text[covered:])
	}
}

func TestSplit_OverlapBetweenChunks(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(30))

	chunks := p.Split(strings.Repeat("y", 300))
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if !strings.HasPrefix(chunks[i], prev[len(prev)-30:]) {
			t.Errorf("chunk %d does not start with the last 30 chars of chunk %d", i, i-1)
		}
	}
}

func TestSplit_AlwaysAdvances(t *testing.T) {
	// A boundary right at the halfway point combined with a large overlap
	// would move the window backwards without the guard.
	p := mustNew(t, WithChunkSize(100), WithOverlap(90))
	text := strings.Repeat(strings.Repeat("z", 50)+" ", 10)

	chunks := p.Split(text)
	if len(chunks) == 0 || len(chunks) > len(text) {
		t.Fatalf("unexpected chunk count %d", len(chunks))
	}
}

func TestProcess_AssignsStableIDs(t *testing.T) {
	p := mustNew(t, WithChunkSize(50), WithOverlap(5))
	doc := &domain.Document{
		Source: "el_kitabi.pdf",
		Text:   strings.Repeat("Çalışanlar yıllık izin hakkına sahiptir. ", 5),
	}

	chunks, err := p.Process(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ID != domain.ChunkID("el_kitabi.pdf", i) {
			t.Errorf("chunk %d: unexpected id %q", i, c.ID)
		}
		if c.Metadata.Source != "el_kitabi.pdf" || c.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d: unexpected metadata %+v", i, c.Metadata)
		}
	}
}

func TestProcess_EmptyDocument(t *testing.T) {
	chunks, err := mustNew(t).Process(context.Background(), &domain.Document{Source: "bos.pdf"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Errorf("expected nil chunks, got %v", chunks)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mustNew(t).Process(ctx, &domain.Document{Text: "metin"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
