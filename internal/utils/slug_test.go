package utils

import (
	"strings"
	"testing"
)

func TestSanitizeSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple title", "My Hero Academia", "My-Hero-Academia"},
		{"forbidden characters", `What If...?: Season <2>`, "What-If...-Season-2"},
		{"collapses whitespace and dashes", "Demon   Slayer -- Mugen Train", "Demon-Slayer-Mugen-Train"},
		{"trims leading and trailing dashes", " -Bleach- ", "Bleach"},
		{"diacritics fold", "Pokémon Café", "Pokemon-Cafe"},
		{"empty", "", "untitled"},
		{"only forbidden characters", `<>:"/\|?*`, "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeSlug(tt.input); got != tt.want {
				t.Errorf("SanitizeSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeSlugDeterministic(t *testing.T) {
	first := SanitizeSlug("Attack on Titan: The Final Season")
	second := SanitizeSlug("Attack on Titan: The Final Season")
	if first != second {
		t.Errorf("slug derivation not deterministic: %q vs %q", first, second)
	}
}

func TestSanitizeSlugTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	if got := SanitizeSlug(long); len(got) != 120 {
		t.Errorf("expected slug truncated to 120 characters, got %d", len(got))
	}
}
