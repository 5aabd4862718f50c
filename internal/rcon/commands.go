package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Executor runs a single RCON command. *Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, command string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// ErrInvalidTarget is returned when a player name or address would not form a
// single well-formed command argument.
var ErrInvalidTarget = errors.New("invalid command target")

var playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

// ValidatePlayerName checks a Java Edition player name.
func ValidatePlayerName(name string) error {
	if !playerNamePattern.MatchString(name) {
		return fmt.Errorf("%w: player name %q", ErrInvalidTarget, name)
	}
	return nil
}

func validateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: address %q", ErrInvalidTarget, ip)
	}
	return nil
}

func sanitizeText(text string) string {
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.ReplaceAll(text, "\n", " ")
}

func withReason(cmd, reason string) string {
	reason = strings.TrimSpace(sanitizeText(reason))
	if reason == "" {
		return cmd
	}
	return cmd + " " + reason
}

// Say broadcasts a chat message.
func Say(message string) (string, error) {
	message = strings.TrimSpace(sanitizeText(message))
	if message == "" {
		return "", fmt.Errorf("%w: empty message", ErrInvalidTarget)
	}
	return "say " + message, nil
}

func Kick(player, reason string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return withReason("kick "+player, reason), nil
}

func Ban(player, reason string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return withReason("ban "+player, reason), nil
}

func Pardon(player string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return "pardon " + player, nil
}

func BanIP(ip, reason string) (string, error) {
	if err := validateIP(ip); err != nil {
		return "", err
	}
	return withReason("ban-ip "+ip, reason), nil
}

func PardonIP(ip string) (string, error) {
	if err := validateIP(ip); err != nil {
		return "", err
	}
	return "pardon-ip " + ip, nil
}

func Op(player string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return "op " + player, nil
}

func Deop(player string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return "deop " + player, nil
}

func WhitelistAdd(player string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return "whitelist add " + player, nil
}

func WhitelistRemove(player string) (string, error) {
	if err := ValidatePlayerName(player); err != nil {
		return "", err
	}
	return "whitelist remove " + player, nil
}

const (
	CommandList            = "list"
	CommandSaveAll         = "save-all"
	CommandStop            = "stop"
	CommandWhitelistOn     = "whitelist on"
	CommandWhitelistOff    = "whitelist off"
	CommandWhitelistReload = "whitelist reload"
)

// Run builds a command and executes it in one step, so callers never send a
// half-validated command.
func Run(ctx context.Context, exec Executor, build func() (string, error)) (string, error) {
	cmd, err := build()
	if err != nil {
		return "", err
	}
	return exec.Execute(ctx, cmd)
}
