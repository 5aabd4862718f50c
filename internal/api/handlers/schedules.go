package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/scheduler"
)

// ScheduleStore holds the editable schedule definitions.
type ScheduleStore interface {
	GetAll() []config.ScheduleDefinition
	GetByName(name string) (config.ScheduleDefinition, bool)
	Add(schedule config.ScheduleDefinition) error
	Update(schedule config.ScheduleDefinition) error
	Delete(name string) error
	Save() error
}

// ScheduleRunner runs the loaded schedules.
type ScheduleRunner interface {
	Reload() error
	Jobs() []scheduler.Job
	RunNow(ctx context.Context, name string) error
}

// ScheduleHandler manages cron schedules.
type ScheduleHandler struct {
	store  ScheduleStore
	runner ScheduleRunner
}

func NewScheduleHandler(store ScheduleStore, runner ScheduleRunner) *ScheduleHandler {
	return &ScheduleHandler{store: store, runner: runner}
}

// ListSchedules returns the definitions with their next/last run times.
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"schedules": h.store.GetAll(),
		"jobs":      h.runner.Jobs(),
	})
}

func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var def config.ScheduleDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scheduler.ValidateCron(def.Cron); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Add(def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.persist(c) {
		h.respondSchedule(c, http.StatusCreated, def.Name)
	}
}

func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.store.GetByName(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}

	var def config.ScheduleDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def.Name = name
	if err := scheduler.ValidateCron(def.Cron); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Update(def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.persist(c) {
		h.respondSchedule(c, http.StatusOK, name)
	}
}

func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.store.Delete(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	if h.persist(c) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Schedule deleted"})
	}
}

// RunSchedule executes a schedule immediately and waits for the result.
func (h *ScheduleHandler) RunSchedule(c *gin.Context) {
	err := h.runner.RunNow(c.Request.Context(), c.Param("name"))
	if errors.Is(err, scheduler.ErrUnknownSchedule) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Schedule executed"})
}

// persist saves the definitions and reloads the cron jobs. A reload error
// for another schedule does not fail the request.
func (h *ScheduleHandler) persist(c *gin.Context) bool {
	if err := h.store.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save schedules", "details": err.Error()})
		return false
	}
	if err := h.runner.Reload(); err != nil {
		log.Printf("[API] Schedule reload reported: %v", err)
	}
	return true
}

func (h *ScheduleHandler) respondSchedule(c *gin.Context, status int, name string) {
	def, _ := h.store.GetByName(name)
	c.JSON(status, gin.H{"schedule": def, "jobs": h.runner.Jobs()})
}
