package rcon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PlayerList is the parsed result of a list command.
type PlayerList struct {
	Online  int      `json:"online"`
	Max     int      `json:"max"`
	Players []string `json:"players"`
}

// ListParser turns the raw response of a list command into a PlayerList.
// Response wording differs between server versions and mods, so callers pick
// the parser matching their server.
type ListParser interface {
	Parse(raw string) (PlayerList, error)
}

// ErrUnrecognizedList is returned when a list response has an unknown shape.
var ErrUnrecognizedList = errors.New("unrecognized list response")

var (
	vanillaListPattern = regexp.MustCompile(`There are (\d+) of a max(?: of)? (\d+) players online:?\s*(.*)`)
	legacyListPattern  = regexp.MustCompile(`There are (\d+)/(\d+) players online:?\s*(.*)`)
	colorCodePattern   = regexp.MustCompile(`§[0-9a-fk-or]`)
)

// VanillaListParser understands the vanilla and Bukkit-family wording.
type VanillaListParser struct{}

func (VanillaListParser) Parse(raw string) (PlayerList, error) {
	text := strings.TrimSpace(colorCodePattern.ReplaceAllString(raw, ""))

	m := vanillaListPattern.FindStringSubmatch(text)
	if m == nil {
		m = legacyListPattern.FindStringSubmatch(text)
	}
	if m == nil {
		return PlayerList{}, fmt.Errorf("%w: %q", ErrUnrecognizedList, raw)
	}

	online, _ := strconv.Atoi(m[1])
	maxPlayers, _ := strconv.Atoi(m[2])

	list := PlayerList{Online: online, Max: maxPlayers, Players: []string{}}
	for _, name := range strings.Split(m[3], ",") {
		if name = strings.TrimSpace(name); name != "" {
			list.Players = append(list.Players, name)
		}
	}
	return list, nil
}

// JSONListParser reads list output from plugins that emit
// {"online":N,"max":M,"players":[...]}.
type JSONListParser struct{}

func (JSONListParser) Parse(raw string) (PlayerList, error) {
	var list PlayerList
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &list); err != nil {
		return PlayerList{}, fmt.Errorf("%w: %v", ErrUnrecognizedList, err)
	}
	if list.Players == nil {
		list.Players = []string{}
	}
	return list, nil
}

// Players lists online players over RCON.
type Players struct {
	exec    Executor
	parser  ListParser
	command string
}

// NewPlayers returns a Players service. Empty command defaults to "list" and a
// nil parser to VanillaListParser.
func NewPlayers(exec Executor, parser ListParser, command string) *Players {
	if parser == nil {
		parser = VanillaListParser{}
	}
	if command == "" {
		command = CommandList
	}
	return &Players{exec: exec, parser: parser, command: command}
}

// List runs the list command and parses the response. The raw text is returned
// alongside so callers can still show it when parsing fails.
func (p *Players) List(ctx context.Context) (PlayerList, string, error) {
	raw, err := p.exec.Execute(ctx, p.command)
	if err != nil {
		return PlayerList{}, "", err
	}
	list, err := p.parser.Parse(raw)
	if err != nil {
		return PlayerList{}, raw, err
	}
	return list, raw, nil
}
