package pathutil

import "testing"

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"photo.png", false},
		{"a/b/c", false},
		{"..", true},
		{".", true},
		{"../../etc/passwd", true},
		{"a/./b", true},
		{`..\..\windows\system32`, true},
		{"...", false},
		{"..hidden", false},
		{"dir/..", true},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.in); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"a.png", "a.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\cat.jpg`, "cat.jpg"},
		{"dir/sub/", "sub"},
		{"///", ""},
		{"..", ".."},
	}
	for _, tt := range tests {
		if got := Base(tt.in); got != tt.want {
			t.Errorf("Base(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0a1b2c3d_report.pdf", true},
		{".env", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
		{"a\x00b", false},
	}
	for _, tt := range tests {
		if got := IsSafeName(tt.in); got != tt.want {
			t.Errorf("IsSafeName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
