package scheduler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Trigger associates a handler name with when it should run. Exactly one of
// Every, Daily, or Weekly must be set.
type Trigger struct {
	Name string `yaml:"name" json:"name"`

	// Every runs the handler at a fixed interval since its last run
	Every time.Duration `yaml:"every,omitempty" json:"every,omitempty"`

	// Daily runs the handler once per day at "HH:MM" local time
	Daily string `yaml:"daily,omitempty" json:"daily,omitempty"`

	// Weekly runs the handler once per week on the named day at At ("HH:MM")
	Weekly string `yaml:"weekly,omitempty" json:"weekly,omitempty"`
	At     string `yaml:"at,omitempty" json:"at,omitempty"`

	// Essential handlers still run when the scheduler is in essential-only mode
	Essential bool `yaml:"essential" json:"essential"`
}

// triggerFile is the on-disk layout of a schedule file
type triggerFile struct {
	Handlers []Trigger `yaml:"handlers"`
}

// LoadTriggers reads triggers from a YAML schedule file.
// A missing file yields no triggers.
func LoadTriggers(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading schedule file: %w", err)
	}

	var f triggerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schedule file %s: %w", path, err)
	}

	for i := range f.Handlers {
		if err := f.Handlers[i].Validate(); err != nil {
			return nil, fmt.Errorf("handler %d (%s): %w", i, f.Handlers[i].Name, err)
		}
	}
	return f.Handlers, nil
}

// Validate checks the trigger is well formed
func (t Trigger) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}

	kinds := 0
	if t.Every != 0 {
		kinds++
		if t.Every < 0 {
			return fmt.Errorf("every must be positive, got %v", t.Every)
		}
	}
	if t.Daily != "" {
		kinds++
		if _, _, err := parseClock(t.Daily); err != nil {
			return fmt.Errorf("daily: %w", err)
		}
	}
	if t.Weekly != "" {
		kinds++
		if _, err := parseWeekday(t.Weekly); err != nil {
			return err
		}
		if _, _, err := parseClock(t.At); err != nil {
			return fmt.Errorf("at: %w", err)
		}
	}

	if kinds != 1 {
		return fmt.Errorf("exactly one of every, daily, weekly must be set")
	}
	return nil
}

// Describe returns a short human-readable schedule
func (t Trigger) Describe() string {
	switch {
	case t.Every > 0:
		return "every " + t.Every.String()
	case t.Daily != "":
		return "daily at " + t.Daily
	case t.Weekly != "":
		return fmt.Sprintf("%s at %s", strings.ToLower(t.Weekly), t.At)
	}
	return "never"
}

// Due reports whether a handler with this trigger should run at now given
// its last run. Daily and weekly triggers fire once their time has passed on
// a matching day; a missed occurrence is not made up later.
func (t Trigger) Due(now, lastRun time.Time) bool {
	switch {
	case t.Every > 0:
		return lastRun.IsZero() || now.Sub(lastRun) >= t.Every

	case t.Daily != "":
		hour, minute, err := parseClock(t.Daily)
		if err != nil {
			return false
		}
		return occurredToday(now, lastRun, hour, minute)

	case t.Weekly != "":
		day, err := parseWeekday(t.Weekly)
		if err != nil || now.Weekday() != day {
			return false
		}
		hour, minute, err := parseClock(t.At)
		if err != nil {
			return false
		}
		return occurredToday(now, lastRun, hour, minute)
	}
	return false
}

func occurredToday(now, lastRun time.Time, hour, minute int) bool {
	occurrence := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(occurrence) {
		return false
	}
	return lastRun.Before(occurrence)
}

func parseClock(s string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", s)
}
