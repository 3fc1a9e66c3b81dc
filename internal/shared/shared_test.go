package shared

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	tu "github.com/desertthunder/mrx/internal/testing"
)

func TestFormatBytes(t *testing.T) {
	tc := []struct {
		name string
		in   int64
		want string
	}{
		{name: "zero", in: 0, want: "0 Bytes"},
		{name: "bytes", in: 512, want: "512 Bytes"},
		{name: "exact kilobyte", in: 1024, want: "1 KB"},
		{name: "fractional kilobytes", in: 1536, want: "1.5 KB"},
		{name: "megabytes", in: 5 * 1024 * 1024, want: "5 MB"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBytes(tt.in); got != tt.want {
				t.Errorf("FormatBytes(%d) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	t.Run("WithLogger adds fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "task_id", "abc")
		logger.Info("hello")

		if !strings.Contains(buf.String(), "task_id=abc") {
			t.Errorf("expected task_id field in output, got %q", buf.String())
		}
	})

	t.Run("NewFileLogger creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "mrx.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Info("written")
		tu.AssertFileExists(t, path)

		if !strings.Contains(tu.MustReadFile(t, path), "written") {
			t.Error("expected log line in file")
		}
	})
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}

func TestOpenBrowser(t *testing.T) {
	t.Run("Rejects Non-HTTP URL", func(t *testing.T) {
		if err := OpenBrowser("file:///etc/passwd"); err == nil {
			t.Error("expected error for file URL")
		}
	})

	t.Run("Unsupported Platform", func(t *testing.T) {
		orig := getRuntime
		getRuntime = func() string { return "plan9" }
		defer func() { getRuntime = orig }()

		if err := OpenBrowser("http://127.0.0.1:8000/api/tasks/x/download/excel"); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})

	t.Run("Command Per Platform", func(t *testing.T) {
		for goos, bin := range map[string]string{"darwin": "open", "linux": "xdg-open", "windows": "rundll32"} {
			cmd, err := browserCommand(goos, "http://example.com")
			if err != nil {
				t.Fatalf("%s: unexpected error %v", goos, err)
			}
			if cmd.Args[0] != bin {
				t.Errorf("%s: expected %s, got %s", goos, bin, cmd.Args[0])
			}
		}
	})
}
