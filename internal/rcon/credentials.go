package rcon

import (
	"errors"
	"fmt"

	"github.com/magiconair/properties"
)

// Credentials identify an RCON endpoint.
type Credentials struct {
	Host     string
	Port     int
	Password string
}

// CredentialSource yields credentials at connect time, so edits to the server
// configuration are picked up by the next session.
type CredentialSource interface {
	Credentials() (Credentials, error)
}

// StaticCredentials returns the same credentials every time.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials() (Credentials, error) {
	return Credentials(s), nil
}

var (
	// ErrRconDisabled is returned when server.properties does not set
	// enable-rcon=true. Minecraft leaves RCON off by default.
	ErrRconDisabled = errors.New("rcon is disabled in server.properties")
	// ErrNoPassword is returned when no rcon.password is configured.
	ErrNoPassword = errors.New("no rcon password configured")
)

// PropertiesCredentials reads rcon.port and rcon.password from a Minecraft
// server.properties file. Non-zero fields override the file.
type PropertiesCredentials struct {
	Path     string
	Host     string
	Port     int
	Password string
}

func (p PropertiesCredentials) Credentials() (Credentials, error) {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadFile(p.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read %s: %w", p.Path, err)
	}

	if !props.GetBool("enable-rcon", false) {
		return Credentials{}, ErrRconDisabled
	}

	creds := Credentials{
		Host:     p.Host,
		Port:     props.GetInt("rcon.port", DefaultPort),
		Password: props.GetString("rcon.password", ""),
	}
	if creds.Host == "" {
		creds.Host = DefaultHost
	}
	if p.Port != 0 {
		creds.Port = p.Port
	}
	if p.Password != "" {
		creds.Password = p.Password
	}
	if creds.Password == "" {
		return Credentials{}, fmt.Errorf("%w: rcon.password is empty in %s", ErrNoPassword, p.Path)
	}
	return creds, nil
}
