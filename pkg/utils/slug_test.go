package utils

import "testing"

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Harbour at Dusk", "harbour-at-dusk"},
		{"  Café & Crème  ", "cafe-creme"},
		{"Straße", "strasse"},
		{"Привет мир", "privet-mir"},
		{"---", ""},
		{"IMG_2041 (copy).JPG", "img-2041-copy-jpg"},
	}

	for _, tt := range tests {
		if got := GenerateSlug(tt.input); got != tt.want {
			t.Fatalf("GenerateSlug(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFileSlug(t *testing.T) {
	if got := FileSlug("user_upload/Holiday Photos/IMG 01.jpeg"); got != "img-01" {
		t.Fatalf("unexpected slug %q", got)
	}
	if got := FileSlug("folder/???.png"); got != "file" {
		t.Fatalf("expected fallback slug, got %q", got)
	}
}
