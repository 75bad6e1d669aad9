package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderRoadmapHTML(t *testing.T) {
	rm := Roadmap{
		Title:       "Learn Go",
		Description: "A gentle on-ramp",
		Owner:       "Ada",
		UpdatedAt:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Steps: []Step{
			{Order: 1, Title: "Tour of Go"},
			{Order: 2, Title: "Build a CLI", Body: "Keep it small"},
		},
	}

	html, err := renderRoadmapHTML(rm)
	if err != nil {
		t.Fatalf("renderRoadmapHTML: %v", err)
	}

	for _, want := range []string{"Learn Go", "A gentle on-ramp", "Ada", "Mar 14, 2026", "Tour of Go", "Keep it small"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderRoadmapHTMLEscapes(t *testing.T) {
	html, err := renderRoadmapHTML(Roadmap{
		Title:     "<script>alert(1)</script>",
		UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("renderRoadmapHTML: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("title was not escaped")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Learn Go", "Learn-Go"},
		{"///", "roadmap"},
		{"a_b-c!", "a_b-c"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Errorf("percentEncodeForDataURL = %q", got)
	}
}
