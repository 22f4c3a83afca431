package scheduling

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/limamedic/clinic/internal/domain/identity"
)

func TestGenerateSlots_Example(t *testing.T) {
	got, err := GenerateSlots("09:00", "10:30", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGenerateSlots_Spacing(t *testing.T) {
	cases := []struct {
		start, end string
		n          int
	}{
		{"09:00", "17:00", 30},
		{"08:15", "12:00", 20},
		{"14:00", "18:00", 45},
		{"00:00", "23:59", 60},
		{"09:00", "09:10", 10},
		{"07:00", "07:59", 15},
	}
	for _, tc := range cases {
		slots, err := GenerateSlots(tc.start, tc.end, tc.n)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tc, err)
		}
		if len(slots) == 0 {
			t.Fatalf("%v: expected slots", tc)
		}
		if slots[0] != tc.start {
			t.Errorf("%v: first slot %s, want %s", tc, slots[0], tc.start)
		}
		step := time.Duration(tc.n) * time.Minute
		prev, _ := time.Parse("15:04", slots[0])
		for _, s := range slots[1:] {
			cur, _ := time.Parse("15:04", s)
			if cur.Sub(prev) != step {
				t.Errorf("%v: slots %s and %s are not %d minutes apart", tc, prev.Format("15:04"), s, tc.n)
			}
			prev = cur
		}
		end, _ := time.Parse("15:04", tc.end)
		if prev.Add(step).After(end) {
			t.Errorf("%v: last slot %s overruns %s", tc, prev.Format("15:04"), tc.end)
		}
		if !prev.Add(2 * step).After(end) {
			t.Errorf("%v: another slot would still fit after %s", tc, prev.Format("15:04"))
		}
	}
}

func TestGenerateSlots_StartNotBeforeEnd(t *testing.T) {
	for _, tc := range [][2]string{{"10:00", "10:00"}, {"12:00", "09:00"}, {"09:00", "09:20"}} {
		got, err := GenerateSlots(tc[0], tc[1], 30)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tc, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("%v: expected empty slice, got %v", tc, got)
		}
	}
}

func TestGenerateSlots_DefaultLength(t *testing.T) {
	got, _ := GenerateSlots("09:00", "10:00", 0)
	if !reflect.DeepEqual(got, []string{"09:00", "09:30"}) {
		t.Errorf("expected 30 minute default, got %v", got)
	}
}

func TestGenerateSlots_BadFormat(t *testing.T) {
	_, err := GenerateSlots("9am", "17:00", 30)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if ce.Field != "start_time" {
		t.Errorf("expected start_time field, got %s", ce.Field)
	}
	if _, err := GenerateSlots("09:00", "late", 30); !errors.As(err, &ce) || ce.Field != "end_time" {
		t.Errorf("expected end_time ConfigurationError, got %v", err)
	}
}

func TestAvailableSlots(t *testing.T) {
	got := AvailableSlots(&identity.Doctor{StartTime: "09:00", EndTime: "10:30"}, 30)
	if !reflect.DeepEqual(got, []string{"09:00", "09:30", "10:00"}) {
		t.Errorf("unexpected slots %v", got)
	}

	blank := AvailableSlots(&identity.Doctor{}, 60)
	if len(blank) != 8 || blank[0] != "09:00" || blank[7] != "16:00" {
		t.Errorf("expected 09:00-17:00 hourly slots, got %v", blank)
	}

	broken := AvailableSlots(&identity.Doctor{StartTime: "nueve", EndTime: "diez"}, 30)
	if !reflect.DeepEqual(broken, FallbackSlots) {
		t.Errorf("expected fallback slots, got %v", broken)
	}
	broken[0] = "mutated"
	if FallbackSlots[0] != "09:00" {
		t.Error("AvailableSlots must not hand out the shared fallback slice")
	}
}
