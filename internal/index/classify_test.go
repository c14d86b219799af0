package index

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  Mode
	}{
		{"authentication error", ModeNatural},
		{"how to parse json", ModeNatural},
		{"src/lib.rs", ModeCode},
		{"parse_json", ModeCode},
		{"foo.bar.baz", ModeCode},
		{"parseJson", ModeCode},
		{"fix the parseJson bug", ModeMixed},
		{"", ModeNatural},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := Classify(tt.query); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
