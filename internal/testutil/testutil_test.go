package testutil

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestNormalizeNewlines(t *testing.T) {
	input := []byte("total_events=1\r\nsource=s count=1\r\n")
	expected := []byte("total_events=1\nsource=s count=1\n")

	actual := normalizeNewlines(input)
	if !bytes.Equal(actual, expected) {
		t.Fatalf("unexpected newline normalization: got=%q want=%q", string(actual), string(expected))
	}
}

func TestRepoRootContainsGoMod(t *testing.T) {
	root := RepoRoot(t)
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("expected go.mod at repo root: %v", err)
	}
}

func TestWriteFileAndMustReadFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "trace.jsonl")
	WriteFile(t, target, []byte("{}\n"))
	got := MustReadFile(t, target)
	if string(got) != "{}\n" {
		t.Fatalf("unexpected file content: %q", string(got))
	}
}

func TestCommandExitCode(t *testing.T) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "exit 3")
	} else {
		cmd = exec.Command("sh", "-c", "exit 3")
	}
	err := cmd.Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if code := CommandExitCode(t, err); code != 3 {
		t.Fatalf("unexpected exit code: got=%d want=3", code)
	}
}

func TestGoldenTextRoundTrip(t *testing.T) {
	repoRoot := RepoRoot(t)
	name := strings.ReplaceAll(strings.ToLower(t.Name()), "/", "_")
	relativePath := filepath.Join(
		"internal",
		"testutil",
		"testdata",
		"tmp_"+name+"_"+time.Now().UTC().Format("20060102150405")+".txt",
	)
	fullPath := filepath.Join(repoRoot, relativePath)
	t.Cleanup(func() {
		_ = os.Remove(fullPath)
		_ = os.Remove(filepath.Dir(fullPath))
	})

	t.Setenv("UPDATE_GOLDEN", "1")
	AssertGoldenText(t, relativePath, []byte("total_events=0\r\n"))
	t.Setenv("UPDATE_GOLDEN", "")
	AssertGoldenText(t, relativePath, []byte("total_events=0\n"))
}
