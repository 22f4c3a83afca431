package session

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const flashKey = "_flashes"

// Flash levels shown by the front end.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "danger"
)

type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func Info(msg string) Flash    { return Flash{Level: LevelInfo, Message: msg} }
func Success(msg string) Flash { return Flash{Level: LevelSuccess, Message: msg} }
func Warning(msg string) Flash { return Flash{Level: LevelWarning, Message: msg} }
func Error(msg string) Flash   { return Flash{Level: LevelError, Message: msg} }

// AddFlash queues messages for the next page the visitor sees.
func (s *Session) AddFlash(flashes ...Flash) error {
	if len(flashes) == 0 {
		return nil
	}
	var queued []Flash
	if _, err := s.Get(flashKey, &queued); err != nil {
		queued = nil
	}
	return s.Set(flashKey, append(queued, flashes...))
}

// PopFlashes returns the queued messages and removes them from the session.
func (s *Session) PopFlashes() []Flash {
	var queued []Flash
	found, err := s.Get(flashKey, &queued)
	if !found {
		return nil
	}
	s.Delete(flashKey)
	if err != nil {
		return nil
	}
	return queued
}

// RedirectResponse is the JSON body of a navigation response.
type RedirectResponse struct {
	Redirect string  `json:"redirect"`
	Flashes  []Flash `json:"flashes,omitempty"`
}

// Redirect queues flashes in the session and answers 303 See Other with the
// target in both the Location header and the body.
func Redirect(c echo.Context, to string, flashes ...Flash) error {
	sess := FromContext(c)
	if err := sess.AddFlash(flashes...); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, to)
	return c.JSON(http.StatusSeeOther, RedirectResponse{Redirect: to, Flashes: flashes})
}
