package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/server"
)

// statusForError maps supervisor and RCON failures to HTTP status codes.
// A start that timed out matches both ErrStartFailed and ErrTimeout and is
// reported as a timeout.
func statusForError(err error) int {
	switch {
	case errors.Is(err, server.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, server.ErrAlreadyRunning), errors.Is(err, server.ErrNotRunning),
		errors.Is(err, rcon.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, server.ErrExternalCommandFailed), errors.Is(err, server.ErrStartFailed),
		errors.Is(err, server.ErrCommandFailed), errors.Is(err, rcon.ErrConnection),
		errors.Is(err, rcon.ErrAuthentication), errors.Is(err, rcon.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"success": false, "error": err.Error()}

	var serr *server.SupervisorError
	if errors.As(err, &serr) {
		body["kind"] = serr.Kind.String()
		if serr.Stderr != "" {
			body["stderr"] = serr.Stderr
		}
		if serr.Stdout != "" {
			body["stdout"] = serr.Stdout
		}
	}

	c.JSON(statusForError(err), body)
}
