package storage

import (
	"os"
	"strings"
	"testing"
)

func TestSaveLog(t *testing.T) {
	ls := NewLogStorage(t.TempDir())

	path, err := ls.SaveLog("Python36", "Run tests", "pytest output here")
	if err != nil {
		t.Fatalf("failed to save log: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log back: %v", err)
	}
	if string(data) != "pytest output here" {
		t.Errorf("log content: got %q", data)
	}
	if !strings.Contains(path, "Python36") {
		t.Errorf("log path should carry the variant: %q", path)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Run tests":          "Runtests",
		"conda create --yes": "condacreate--yes",
		"Python 3.6":         "Python3.6",
		"///":                "step",
		"":                   "step",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q): got %q, want %q", in, got, want)
		}
	}
}
