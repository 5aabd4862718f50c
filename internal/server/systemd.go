package server

import (
	"context"
	"fmt"
	"log"

	"github.com/godbus/dbus/v5"
)

const (
	systemdDest       = "org.freedesktop.systemd1"
	systemdPath       = dbus.ObjectPath("/org/freedesktop/systemd1")
	systemdManager    = "org.freedesktop.systemd1.Manager"
	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// SystemdController controls the server through a systemd unit over D-Bus.
type SystemdController struct {
	Unit string
}

func (c *SystemdController) Invoke(ctx context.Context, action Action) (ControlResult, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return ControlResult{}, fmt.Errorf("system bus: %w", err)
	}

	var method string
	switch action {
	case ActionStart:
		method = systemdManager + ".StartUnit"
	case ActionStop:
		method = systemdManager + ".StopUnit"
	case ActionRestart:
		method = systemdManager + ".RestartUnit"
	case ActionStatus:
		state, err := unitActiveState(ctx, conn, c.Unit)
		if err != nil {
			return ControlResult{}, err
		}
		res := ControlResult{Stdout: state}
		if state != "active" {
			res.ExitCode = 3
		}
		return res, nil
	default:
		return ControlResult{}, fmt.Errorf("systemd control does not support %q", action)
	}

	log.Printf("[Supervisor] Requesting %s of unit %s", action, c.Unit)
	obj := conn.Object(systemdDest, systemdPath)
	call := obj.CallWithContext(ctx, method, 0, c.Unit, "replace")
	if call.Err != nil {
		// A rejected job is the unit manager reporting failure, not a transport problem.
		switch call.Err.(type) {
		case dbus.Error, *dbus.Error:
			return ControlResult{ExitCode: 1, Stderr: call.Err.Error()}, nil
		}
		return ControlResult{}, fmt.Errorf("%s %s: %w", method, c.Unit, call.Err)
	}

	var job dbus.ObjectPath
	if len(call.Body) > 0 {
		job, _ = call.Body[0].(dbus.ObjectPath)
	}
	return ControlResult{Stdout: string(job)}, nil
}

// UnitPIDSource reads the main PID of a systemd unit.
type UnitPIDSource struct {
	Unit string
}

func (s *UnitPIDSource) ReadPID() (int, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return 0, fmt.Errorf("system bus: %w", err)
	}
	path, err := unitPath(context.Background(), conn, s.Unit)
	if err != nil {
		// Units that were never loaded have no PID.
		return 0, fmt.Errorf("%w: %v", ErrNoPID, err)
	}

	variant, err := conn.Object(systemdDest, path).GetProperty("org.freedesktop.systemd1.Service.MainPID")
	if err != nil {
		return 0, err
	}
	pid, _ := variant.Value().(uint32)
	if pid == 0 {
		return 0, ErrNoPID
	}
	return int(pid), nil
}

// Clear is a no-op; systemd owns the record.
func (s *UnitPIDSource) Clear() error {
	return nil
}

// WatchUnit calls onChange whenever the unit's ActiveState changes, until ctx
// is done.
func WatchUnit(ctx context.Context, unit string, onChange func(state string)) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("system bus: %w", err)
	}
	path, err := unitPath(ctx, conn, unit)
	if err != nil {
		return err
	}

	match := "type='signal',sender='org.freedesktop.systemd1',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'"
	_ = conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, match)

	sigCh := make(chan *dbus.Signal, 64)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)

	last, _ := unitActiveState(ctx, conn, unit)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == nil || sig.Name != propertiesChanged || sig.Path != path || len(sig.Body) < 2 {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			variant, ok := changed["ActiveState"]
			if !ok {
				continue
			}
			state, _ := variant.Value().(string)
			if state != "" && state != last {
				last = state
				onChange(state)
			}
		}
	}
}

func unitPath(ctx context.Context, conn *dbus.Conn, unit string) (dbus.ObjectPath, error) {
	call := conn.Object(systemdDest, systemdPath).CallWithContext(ctx, systemdManager+".GetUnit", 0, unit)
	if call.Err != nil {
		return "", call.Err
	}
	path, ok := call.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("unexpected unit path type")
	}
	return path, nil
}

func unitActiveState(ctx context.Context, conn *dbus.Conn, unit string) (string, error) {
	path, err := unitPath(ctx, conn, unit)
	if err != nil {
		return "", err
	}
	variant, err := conn.Object(systemdDest, path).GetProperty("org.freedesktop.systemd1.Unit.ActiveState")
	if err != nil {
		return "", err
	}
	state, _ := variant.Value().(string)
	return state, nil
}
