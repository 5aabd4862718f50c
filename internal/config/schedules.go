package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Schedule actions
const (
	ScheduleStart   = "start"
	ScheduleStop    = "stop"
	ScheduleRestart = "restart"
	ScheduleCommand = "command"
)

// ScheduleDefinition is a cron-driven lifecycle job.
type ScheduleDefinition struct {
	Name         string `json:"name" yaml:"name"`
	Cron         string `json:"cron" yaml:"cron"`
	Action       string `json:"action" yaml:"action"`
	Command      string `json:"command,omitempty" yaml:"command,omitempty"`
	Announce     string `json:"announce,omitempty" yaml:"announce,omitempty"`
	AnnounceLead string `json:"announce_lead,omitempty" yaml:"announce_lead,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the job should be scheduled. Jobs default to on.
func (s ScheduleDefinition) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

var scheduleNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

const schedulesFile = "schedules.yaml"

// SchedulesPath returns the schedules file inside configDir.
func SchedulesPath(configDir string) string {
	return filepath.Join(configDir, schedulesFile)
}

// LoadSchedules loads schedule definitions from configDir/schedules.yaml.
func LoadSchedules(configDir string) ([]ScheduleDefinition, error) {
	data, err := os.ReadFile(SchedulesPath(configDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []ScheduleDefinition{}, nil
		}
		return nil, fmt.Errorf("failed to read schedules file: %w", err)
	}

	var schedulesFile struct {
		Schedules []ScheduleDefinition `yaml:"schedules"`
	}

	if err := yaml.Unmarshal(data, &schedulesFile); err != nil {
		return nil, fmt.Errorf("failed to parse schedules file: %w", err)
	}

	for i := range schedulesFile.Schedules {
		if err := ValidateSchedule(&schedulesFile.Schedules[i]); err != nil {
			return nil, fmt.Errorf("invalid schedule at index %d: %w", i, err)
		}
	}
	if schedulesFile.Schedules == nil {
		schedulesFile.Schedules = []ScheduleDefinition{}
	}

	return schedulesFile.Schedules, nil
}

// SaveSchedules writes schedule definitions to configDir/schedules.yaml.
func SaveSchedules(configDir string, schedules []ScheduleDefinition) error {
	schedulesFile := struct {
		Schedules []ScheduleDefinition `yaml:"schedules"`
	}{
		Schedules: schedules,
	}

	data, err := yaml.Marshal(schedulesFile)
	if err != nil {
		return fmt.Errorf("failed to marshal schedules: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(SchedulesPath(configDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write schedules file: %w", err)
	}

	return nil
}

// ValidateSchedule checks a definition. The cron expression itself is parsed
// by the scheduler.
func ValidateSchedule(schedule *ScheduleDefinition) error {
	schedule.Name = strings.TrimSpace(schedule.Name)
	schedule.Action = strings.ToLower(strings.TrimSpace(schedule.Action))
	schedule.Cron = strings.TrimSpace(schedule.Cron)

	if !scheduleNamePattern.MatchString(schedule.Name) {
		return fmt.Errorf("schedule name must be 1-64 letters, digits, '.', '_' or '-'")
	}
	if schedule.Cron == "" {
		return fmt.Errorf("schedule cron expression is required")
	}

	switch schedule.Action {
	case ScheduleStart, ScheduleStop, ScheduleRestart:
	case ScheduleCommand:
		if strings.TrimSpace(schedule.Command) == "" {
			return fmt.Errorf("command is required when action is 'command'")
		}
	default:
		return fmt.Errorf("action must be 'start', 'stop', 'restart' or 'command'")
	}

	if strings.ContainsAny(schedule.Command, "\r\n") || strings.ContainsAny(schedule.Announce, "\r\n") {
		return fmt.Errorf("command and announce must be a single line")
	}

	if schedule.AnnounceLead != "" {
		lead, err := time.ParseDuration(schedule.AnnounceLead)
		if err != nil || lead < 0 {
			return fmt.Errorf("announce_lead must be a non-negative duration")
		}
	}

	return nil
}
