package log

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

func TestErrorChain(t *testing.T) {
	root := errors.New("root")
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"nil", nil, []string{}},
		{"single", root, []string{"root"}},
		{"wrapped", fmt.Errorf("outer: %w", root), []string{"outer: root", "root"}},
		{"stacked dedupes", xerrors.WithStack(root), []string{"root"}},
		{"joined", errors.Join(errors.New("a"), errors.New("b")), []string{"a\nb", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorChain(tt.err)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("errorChain = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyTypes(t *testing.T) {
	if s, r := classifyTypes(nil); s != "" || r != "" {
		t.Fatalf("nil: %q %q", s, r)
	}

	_, statErr := os.Stat("/definitely/not/here")
	err := xerrors.Wrap(statErr, "open upload dir")
	surface, root := classifyTypes(err)
	if surface != "*fs.PathError" {
		t.Fatalf("surface = %q, want *fs.PathError", surface)
	}
	if root != "syscall.Errno" {
		t.Fatalf("root = %q, want syscall.Errno", root)
	}
}

func TestChainLinks(t *testing.T) {
	if got := chainLinks(nil, 8); len(got) != 0 {
		t.Fatalf("nil err gave %v", got)
	}

	err := xerrors.Wrap(xerrors.Wrap(xerrors.New("base"), "mid"), "top")
	links := chainLinks(err, 8)
	if len(links) < 2 {
		t.Fatalf("expected positioned links, got %v", links)
	}
	if links[0]["msg"] != "top: mid: base" {
		t.Fatalf("first link = %v", links[0]["msg"])
	}
	if fn, _ := links[0]["func"].(string); !strings.Contains(fn, "TestChainLinks") {
		t.Fatalf("func = %v", links[0]["func"])
	}

	if got := chainLinks(err, 1); len(got) != 1 {
		t.Fatalf("max=1 gave %d links", len(got))
	}
}

func TestFrameHelpers_Empty(t *testing.T) {
	if _, _, _, ok := frameFromPC(0); ok {
		t.Fatal("frameFromPC(0) should fail")
	}
	if _, _, _, ok := firstExtFrame(nil); ok {
		t.Fatal("firstExtFrame(nil) should fail")
	}
}
