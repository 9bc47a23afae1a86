package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Variável", "Média", "N"}
	rows := [][]string{
		{"clareza", "4,50", "12"},
		{"d_score", "-0,25", "3"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := FormatTable(headers, rows, rightAlign)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	want := []string{
		"Variável Média  N",
		"-------- ----- --",
		"clareza   4,50 12",
		"d_score  -0,25  3",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := FormatTable([]string{"k", "v"}, [][]string{{"日本", "1"}, {"ab", "2"}}, map[int]bool{1: true})
	if lines[2] != "日本 1" || lines[3] != "ab   2" {
		t.Fatalf("unexpected wide-rune layout: %q", lines)
	}
}
