package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/database"
	"github.com/Yupick/mc-simple/internal/logging"
	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/server"
)

// app holds the components shared by every command.
type app struct {
	cfg        *config.Config
	configPath string
	db         *database.DB
	rcon       *rcon.Client
	recorder   *server.SQLRecorder
	supervisor *server.Supervisor
}

// loadApp reads the configuration, sets up logging and opens the database.
// onEvent receives every lifecycle event and may be nil.
func loadApp(onEvent func(server.Event)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if _, err := logging.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logging.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		logging.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, configPath: resolvedConfigPath(), db: db, recorder: server.NewSQLRecorder(db.DB)}
	a.rcon = newRCONClient(cfg.RCON)
	a.supervisor = newSupervisor(cfg.Minecraft, a.rcon, a.recorder, onEvent)
	return a, nil
}

func (a *app) Close() {
	if err := a.rcon.Close(); err != nil {
		log.Printf("[RCON] Close: %v", err)
	}
	a.db.Close()
	logging.Close()
}

func newRCONClient(cfg config.RCONConfig) *rcon.Client {
	rc := rcon.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Password:       cfg.Password,
		ConnectTimeout: config.Duration(cfg.ConnectTimeout, rcon.DefaultConnectTimeout),
		ReadTimeout:    config.Duration(cfg.ReadTimeout, rcon.DefaultReadTimeout),
		Fragmentation:  rcon.Fragmentation(cfg.Fragmentation),
		FragmentWait:   config.Duration(cfg.FragmentWait, rcon.DefaultFragmentWait),
	}
	if strings.TrimSpace(cfg.PropertiesFile) != "" {
		rc.Credentials = rcon.PropertiesCredentials{
			Path:     cfg.PropertiesFile,
			Host:     cfg.Host,
			Port:     cfg.Port,
			Password: cfg.Password,
		}
	}
	return rcon.NewClient(rc)
}

func newSupervisor(mc config.MinecraftConfig, client *rcon.Client, recorder server.Recorder, onEvent func(server.Event)) *server.Supervisor {
	opts := server.Options{
		ServerID:     mc.ID,
		ProcessName:  mc.ProcessName,
		StartTimeout: config.Duration(mc.StartTimeout, 0),
		StopTimeout:  config.Duration(mc.StopTimeout, 0),
		KillTimeout:  config.Duration(mc.KillTimeout, 0),
		PollInterval: config.Duration(mc.PollInterval, 0),
		RestartDelay: config.Duration(mc.RestartDelay, 0),
		StopStrategy: server.StopStrategy(mc.StopStrategy),
		StopCommands: mc.StopCommands,
	}

	deps := server.Dependencies{
		Probe:    server.GopsutilProbe{},
		Signals:  server.OSSignaller{},
		Logs:     &server.FileLogReader{Path: mc.LogFile},
		RCON:     client,
		Recorder: recorder,
		OnEvent:  onEvent,
	}

	switch mc.Control.Type {
	case "systemd":
		deps.PIDs = &server.UnitPIDSource{Unit: mc.Control.SystemdUnit}
		deps.Control = &server.SystemdController{Unit: mc.Control.SystemdUnit}
	default:
		deps.PIDs = &server.PIDFile{Path: mc.PIDFile}
		deps.Control = server.NewScriptController(mc.Control.Script, mc.ServerPath, config.Duration(mc.Control.Timeout, 0))
	}

	return server.New(opts, deps)
}

// newPlayers lists players through Query so polling is not recorded as a
// console command.
func (a *app) newPlayers() *rcon.Players {
	return rcon.NewPlayers(rcon.ExecutorFunc(a.supervisor.Query), rcon.VanillaListParser{}, rcon.CommandList)
}
