package server

import "testing"

var sampleLog = []string{
	"[12:00:00] [Server thread/INFO]: Done (3.2s)! For help, type \"help\"",
	"[12:00:05] [Server thread/WARN]: Can't keep up! Is the server overloaded?",
	"[12:00:06] [Server thread/INFO]: Steve joined the game",
	"[12:00:07] [Server thread/ERROR]: Encountered an unexpected exception",
	"java.lang.NullPointerException: null",
	"\tat net.minecraft.server.MinecraftServer.tick(MinecraftServer.java:100)",
}

func TestLogFilterProblems(t *testing.T) {
	f, err := NewLogFilter("problems", "", false)
	if err != nil {
		t.Fatalf("NewLogFilter failed: %v", err)
	}
	got := f.Apply(sampleLog)
	if len(got) != 4 {
		t.Fatalf("expected 4 problem lines, got %d: %q", len(got), got)
	}
	if got[0] != sampleLog[1] || got[3] != sampleLog[5] {
		t.Errorf("unexpected lines %q", got)
	}
}

func TestLogFilterSearch(t *testing.T) {
	f, err := NewLogFilter("search", "steve", false)
	if err != nil {
		t.Fatalf("NewLogFilter failed: %v", err)
	}
	if got := f.Apply(sampleLog); len(got) != 1 || got[0] != sampleLog[2] {
		t.Errorf("unexpected lines %q", got)
	}

	f, _ = NewLogFilter("search", "steve", true)
	if got := f.Apply(sampleLog); len(got) != 0 {
		t.Errorf("case sensitive search should not match, got %q", got)
	}
}

func TestLogFilterRegex(t *testing.T) {
	f, err := NewLogFilter("regex", `\w+ joined the game$`, false)
	if err != nil {
		t.Fatalf("NewLogFilter failed: %v", err)
	}
	if got := f.Apply(sampleLog); len(got) != 1 {
		t.Errorf("unexpected lines %q", got)
	}
}

func TestLogFilterInvalid(t *testing.T) {
	tests := []struct{ mode, pattern string }{
		{"regex", "("},
		{"search", ""},
		{"grep", "x"},
	}
	for _, tt := range tests {
		if _, err := NewLogFilter(tt.mode, tt.pattern, false); err == nil {
			t.Errorf("expected error for mode %q pattern %q", tt.mode, tt.pattern)
		}
	}
}

func TestLogFilterNoneKeepsEverything(t *testing.T) {
	f, _ := NewLogFilter("", "", false)
	if got := f.Apply(sampleLog); len(got) != len(sampleLog) {
		t.Errorf("expected all lines, got %d", len(got))
	}
}
