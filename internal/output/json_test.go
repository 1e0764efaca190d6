package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sampleEntry struct {
	Phase   int     `json:"phase"`
	Value   float64 `json:"value"`
	Pinning string  `json:"pinning"`
}

func TestWriteJSONToFile(t *testing.T) {
	entries := []sampleEntry{{Phase: 0, Value: 7.5, Pinning: "0:5"}}

	tmpDir := t.TempDir()
	outPath := filepath.Join(tmpDir, "history.json")

	if err := WriteJSON(entries, outPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"pinning": "0:5"`) {
		t.Error("output missing pinning field")
	}
}

func TestWriteJSONStdout(t *testing.T) {
	entries := []sampleEntry{{Phase: 1, Value: 1.0, Pinning: "2"}}

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := WriteJSON(entries, "-")

	w.Close()
	os.Stdout = oldStdout

	if err != nil {
		t.Fatalf("WriteJSON to stdout: %v", err)
	}

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	if n == 0 {
		t.Error("no output to stdout")
	}
}
