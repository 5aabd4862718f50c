package rcon

import (
	"context"
	"errors"
	"testing"
)

type recordingExecutor struct {
	commands []string
	response string
	err      error
}

func (r *recordingExecutor) Execute(ctx context.Context, command string) (string, error) {
	r.commands = append(r.commands, command)
	return r.response, r.err
}

func TestCommandBuilders(t *testing.T) {
	tests := []struct {
		name  string
		build func() (string, error)
		want  string
	}{
		{"kick with reason", func() (string, error) { return Kick("Steve", "spamming chat") }, "kick Steve spamming chat"},
		{"kick without reason", func() (string, error) { return Kick("Steve", "  ") }, "kick Steve"},
		{"ban", func() (string, error) { return Ban("Alex_99", "griefing") }, "ban Alex_99 griefing"},
		{"pardon", func() (string, error) { return Pardon("Alex_99") }, "pardon Alex_99"},
		{"ban ip", func() (string, error) { return BanIP("203.0.113.7", "") }, "ban-ip 203.0.113.7"},
		{"pardon ip v6", func() (string, error) { return PardonIP("2001:db8::1") }, "pardon-ip 2001:db8::1"},
		{"op", func() (string, error) { return Op("Notch") }, "op Notch"},
		{"deop", func() (string, error) { return Deop("Notch") }, "deop Notch"},
		{"whitelist add", func() (string, error) { return WhitelistAdd("Bob") }, "whitelist add Bob"},
		{"whitelist remove", func() (string, error) { return WhitelistRemove("Bob") }, "whitelist remove Bob"},
		{"say flattens newlines", func() (string, error) { return Say("restart in\n5 minutes") }, "say restart in 5 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCommandBuildersRejectInvalidTargets(t *testing.T) {
	builds := map[string]func() (string, error){
		"name with space":    func() (string, error) { return Kick("Steve; op me", "") },
		"name too long":      func() (string, error) { return Op("abcdefghijklmnopq") },
		"empty name":         func() (string, error) { return Ban("", "x") },
		"name with newline":  func() (string, error) { return WhitelistAdd("Bob\nstop") },
		"invalid ip":         func() (string, error) { return BanIP("999.1.1.1", "") },
		"empty say message":  func() (string, error) { return Say("  ") },
		"hostname is not ip": func() (string, error) { return PardonIP("example.com") },
	}

	for name, build := range builds {
		t.Run(name, func(t *testing.T) {
			if _, err := build(); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("expected ErrInvalidTarget, got %v", err)
			}
		})
	}
}

func TestRunSkipsExecutorOnInvalidTarget(t *testing.T) {
	exec := &recordingExecutor{response: "Kicked Steve"}

	if _, err := Run(context.Background(), exec, func() (string, error) { return Kick("bad name", "") }); err == nil {
		t.Fatal("expected error for invalid name")
	}
	if len(exec.commands) != 0 {
		t.Fatalf("expected no command sent, got %v", exec.commands)
	}

	out, err := Run(context.Background(), exec, func() (string, error) { return Kick("Steve", "") })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out != "Kicked Steve" || exec.commands[0] != "kick Steve" {
		t.Errorf("unexpected result %q for commands %v", out, exec.commands)
	}
}
