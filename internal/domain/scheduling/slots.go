package scheduling

import (
	"fmt"
	"time"

	"github.com/limamedic/clinic/internal/domain/identity"
)

const (
	DefaultSlotMinutes = 30
	defaultDayStart    = "09:00"
	defaultDayEnd      = "17:00"
	clockLayout        = "15:04"
)

// FallbackSlots is offered when a doctor's hours cannot be parsed.
var FallbackSlots = []string{"09:00", "09:30", "10:00", "10:30", "11:00"}

// ConfigurationError reports a doctor's working hours that are not "HH:MM".
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// GenerateSlots returns the start times of every slot of slotMinutes that
// fits between start and end. A non-positive length means 30 minutes.
func GenerateSlots(start, end string, slotMinutes int) ([]string, error) {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	from, err := time.Parse(clockLayout, start)
	if err != nil {
		return nil, &ConfigurationError{Field: "start_time", Value: start, Err: err}
	}
	to, err := time.Parse(clockLayout, end)
	if err != nil {
		return nil, &ConfigurationError{Field: "end_time", Value: end, Err: err}
	}

	step := time.Duration(slotMinutes) * time.Minute
	slots := []string{}
	for cur := from; !cur.Add(step).After(to); cur = cur.Add(step) {
		slots = append(slots, cur.Format(clockLayout))
	}
	return slots, nil
}

// AvailableSlots is GenerateSlots over the doctor's hours, with blank hours
// read as 09:00-17:00 and FallbackSlots on unparseable ones.
func AvailableSlots(d *identity.Doctor, slotMinutes int) []string {
	start, end := defaultDayStart, defaultDayEnd
	if d != nil {
		if d.StartTime != "" {
			start = d.StartTime
		}
		if d.EndTime != "" {
			end = d.EndTime
		}
	}
	slots, err := GenerateSlots(start, end, slotMinutes)
	if err != nil {
		return append([]string(nil), FallbackSlots...)
	}
	return slots
}

func validClock(s string) bool {
	_, err := time.Parse(clockLayout, s)
	return err == nil
}
