package telegram

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "Привет", "Привет"},
		{"dot and bang", "Привет! Это начало квеста.", "Привет\\! Это начало квеста\\."},
		{"reserved characters", "a_b*c[d]e(f)", "a\\_b\\*c\\[d\\]e\\(f\\)"},
		{"dash", "1933-1941", "1933\\-1941"},
		{
			name: "inline link kept intact",
			in:   "Смотри [карту](http://example.com/map) и вперед!",
			want: "Смотри [карту](http://example.com/map) и вперед\\!",
		},
		{
			name: "https link kept intact",
			in:   "[отзыв](https://example.com/feedback)",
			want: "[отзыв](https://example.com/feedback)",
		},
		{"lone brackets escaped", "a [b c", "a \\[b c"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EscapeMarkdownV2(tc.in); got != tc.want {
				t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
