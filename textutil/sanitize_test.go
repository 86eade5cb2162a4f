package textutil

import "testing"

func TestSanitizeScript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"curly apostrophe", "it’s done", "it's done"},
		{"curly quotes", "“quoted”", `\"quoted\"`},
		{"em dash", "wait—now", "wait-now"},
		{"en dash", "1990–1995", "1990-1995"},
		{"ellipsis", "and then…", "and then..."},
		{"non-breaking space", "a b", "a b"},
		{"backslash", `a\b`, `a\\b`},
		{"double quote", `say "hi"`, `say \"hi\"`},
		{"unix newline", "one\ntwo", `one\ntwo`},
		{"windows newline", "one\r\ntwo", `one\ntwo`},
		{"tab", "a\tb", "a b"},
		{"trims", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeScript(tt.in); got != tt.want {
				t.Errorf("SanitizeScript(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeScriptRoundTrip(t *testing.T) {
	in := "It’s here—look\nclosely"
	want := `It's here-look\nclosely`
	if got := SanitizeScript(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFirstParagraph(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		in := "First paragraph here.\n\nSecond paragraph."
		if got := FirstParagraph(in); got != "First paragraph here." {
			t.Errorf("got %q", got)
		}
	})
	t.Run("sanitized text", func(t *testing.T) {
		in := `Intro line one. Intro line two.\n\nBody starts here.`
		if got := FirstParagraph(in); got != "Intro line one. Intro line two." {
			t.Errorf("got %q", got)
		}
	})
	t.Run("single paragraph", func(t *testing.T) {
		if got := FirstParagraph("only one line"); got != "only one line" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("soft wraps joined", func(t *testing.T) {
		if got := FirstParagraph("a\nb\n\nc"); got != "a b" {
			t.Errorf("got %q", got)
		}
	})
}
