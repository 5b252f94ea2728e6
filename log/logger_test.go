package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for level, name := range levelNames {
		parsed, err := ParseLevel(strings.ToUpper(name))
		if err != nil {
			t.Fatal(err)
		}
		if parsed != level {
			t.Fatalf("expected %q to parse as %s; got %s", name, level, parsed)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestSinkKeepsLevel(t *testing.T) {
	defer func() {
		SetSink(os.Stdout)
		SetLevel(Notice)
	}()

	SetLevel(Warning)
	var buf bytes.Buffer
	SetSink(&buf)

	logger := New("test")
	logger.Notice("hidden")
	logger.Warning("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected notice messages to be filtered; got %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "[test]") {
		t.Fatalf("expected warning message with module name; got %q", out)
	}
}
