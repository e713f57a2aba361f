package domain_test

import (
	"testing"
	"time"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
)

func TestParseTimeOfDay(t *testing.T) {
	valid := []string{"00:00", "09:30", "23:59"}
	for _, s := range valid {
		if _, err := domain.ParseTimeOfDay(s); err != nil {
			t.Errorf("ParseTimeOfDay(%q) unexpected error: %v", s, err)
		}
	}

	invalid := []string{"", "9:30", "24:00", "12:60", "12-30", "noon", "12:3"}
	for _, s := range invalid {
		if _, err := domain.ParseTimeOfDay(s); err == nil {
			t.Errorf("ParseTimeOfDay(%q) expected error", s)
		}
	}
}

func TestTimeOfDayMinutes(t *testing.T) {
	tod, err := domain.ParseTimeOfDay("14:45")
	if err != nil {
		t.Fatal(err)
	}
	if got := tod.Minutes(); got != 14*60+45 {
		t.Fatalf("Minutes = %d, want %d", got, 14*60+45)
	}
}

func TestParseWeeklySchedule(t *testing.T) {
	raw := []byte(`{"Monday": ["10:00", "09:00"], "friday": ["14:00"]}`)
	s, err := domain.ParseWeeklySchedule(raw)
	if err != nil {
		t.Fatal(err)
	}

	monday := s.On(time.Monday)
	if len(monday) != 2 || monday[0] != "09:00" || monday[1] != "10:00" {
		t.Fatalf("monday slots not sorted: %v", monday)
	}

	if !s.Admits(time.Friday, "14:00") {
		t.Error("friday 14:00 should be admitted")
	}
	if s.Admits(time.Friday, "15:00") {
		t.Error("friday 15:00 should not be admitted")
	}
	if s.Admits(time.Sunday, "09:00") {
		t.Error("empty day should admit nothing")
	}
}

func TestParseWeeklyScheduleRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`["09:00"]`,
		`{"someday": ["09:00"]}`,
		`{"monday": ["9am"]}`,
	} {
		if _, err := domain.ParseWeeklySchedule([]byte(raw)); err == nil {
			t.Errorf("ParseWeeklySchedule(%s) expected error", raw)
		}
	}
}

func TestParseMedicineTimes(t *testing.T) {
	times, err := domain.ParseMedicineTimes([]byte(`["08:00", "20:00"]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(times) != 2 {
		t.Fatalf("got %d times, want 2", len(times))
	}

	if _, err := domain.ParseMedicineTimes([]byte(`{"morning": true}`)); err == nil {
		t.Error("object blob should be rejected")
	}
	if _, err := domain.ParseMedicineTimes([]byte(`["8am"]`)); err == nil {
		t.Error("non HH:MM entry should be rejected")
	}
}
