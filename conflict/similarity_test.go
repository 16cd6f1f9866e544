package conflict

import (
	"testing"
	"unicode/utf8"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"book", "back", 2},
		{"読書記録", "読書メモ", 2},
	}

	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity_Identity(t *testing.T) {
	for _, s := range []string{"", "a", "The Left Hand of Darkness", "長いタイトル"} {
		if got := Similarity(s, s); got != 1 {
			t.Errorf("Similarity(%q, %q) = %v, want 1", s, s, got)
		}
	}
}

func TestSimilarity_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"Dune", "Dune Messiah"},
		{"", "anything"},
		{"abcdef", "fedcba"},
		{"Война и мир", "War and Peace"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Errorf("Similarity(%q, %q) = %v outside [0,1]", p[0], p[1], ab)
		}
	}
}

func FuzzSimilarity(f *testing.F) {
	f.Add("Dune", "Dune Messiah")
	f.Add("", "")
	f.Add("a", "b")
	f.Add("読書", "記録")

	f.Fuzz(func(t *testing.T, a, b string) {
		if !utf8.ValidString(a) || !utf8.ValidString(b) {
			t.Skip()
		}

		ab := Similarity(a, b)
		ba := Similarity(b, a)

		if ab != ba {
			t.Fatalf("similarity not symmetric: %v vs %v", ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("similarity %v outside [0,1]", ab)
		}
		if a == b && ab != 1 {
			t.Fatalf("identical strings should have similarity 1, got %v", ab)
		}
	})
}
