package config

import (
	"fmt"
	"log"
	"sync"
)

// ScheduleManager handles thread-safe access to the schedule definitions
type ScheduleManager struct {
	configDir string
	mutex     sync.RWMutex
	schedules []ScheduleDefinition
}

// NewScheduleManager creates a manager and loads schedules from configDir.
func NewScheduleManager(configDir string) (*ScheduleManager, error) {
	sm := &ScheduleManager{
		configDir: configDir,
		schedules: []ScheduleDefinition{},
	}

	if err := sm.Load(); err != nil {
		return nil, err
	}

	return sm, nil
}

// Load reads the schedules from disk
func (sm *ScheduleManager) Load() error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	schedules, err := LoadSchedules(sm.configDir)
	if err != nil {
		return err
	}
	sm.schedules = schedules
	return nil
}

// Save writes the current schedules to disk
func (sm *ScheduleManager) Save() error {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	if err := SaveSchedules(sm.configDir, sm.schedules); err != nil {
		return err
	}
	log.Printf("[Schedules] Wrote %d schedules to %s", len(sm.schedules), SchedulesPath(sm.configDir))
	return nil
}

// GetAll returns a copy of all schedule definitions
func (sm *ScheduleManager) GetAll() []ScheduleDefinition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	result := make([]ScheduleDefinition, len(sm.schedules))
	copy(result, sm.schedules)
	return result
}

// GetByName returns a schedule definition by name
func (sm *ScheduleManager) GetByName(name string) (ScheduleDefinition, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	for _, s := range sm.schedules {
		if s.Name == name {
			return s, true
		}
	}
	return ScheduleDefinition{}, false
}

// Add adds a new schedule definition. Call Save to persist it.
func (sm *ScheduleManager) Add(schedule ScheduleDefinition) error {
	if err := ValidateSchedule(&schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for _, s := range sm.schedules {
		if s.Name == schedule.Name {
			return fmt.Errorf("schedule %s already exists", schedule.Name)
		}
	}

	sm.schedules = append(sm.schedules, schedule)
	return nil
}

// Update replaces an existing schedule definition. Call Save to persist it.
func (sm *ScheduleManager) Update(schedule ScheduleDefinition) error {
	if err := ValidateSchedule(&schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, s := range sm.schedules {
		if s.Name == schedule.Name {
			sm.schedules[i] = schedule
			return nil
		}
	}

	return fmt.Errorf("schedule %s not found", schedule.Name)
}

// Delete removes a schedule definition. Call Save to persist it.
func (sm *ScheduleManager) Delete(name string) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, s := range sm.schedules {
		if s.Name == name {
			sm.schedules = append(sm.schedules[:i], sm.schedules[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("schedule %s not found", name)
}
