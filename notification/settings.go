package notification

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/staffing-engine/generic"
)

// =============================================================================
// SETTING KEYS
// =============================================================================

const (
	KeyDuplicateDetectionEnabled = "duplicate_detection_enabled"
	KeyDuplicateThreshold        = "duplicate_threshold"
	KeyOverloadDetectionEnabled  = "overload_detection_enabled"
	KeyOverloadThreshold         = "overload_threshold"
	KeyEventRemindersEnabled     = "event_reminders_enabled"
	KeyReminderDays              = "reminder_days"
	KeyAnomalyDetectionEnabled   = "anomaly_detection_enabled"
	KeyWeeklyReportEnabled       = "weekly_report_enabled"
)

// defaultValues is the raw form of DefaultSettings.
var defaultValues = map[string]string{
	KeyDuplicateDetectionEnabled: "true",
	KeyDuplicateThreshold:        "0.7",
	KeyOverloadDetectionEnabled:  "true",
	KeyOverloadThreshold:         "5",
	KeyEventRemindersEnabled:     "true",
	KeyReminderDays:              "30,14,7,3,1",
	KeyAnomalyDetectionEnabled:   "true",
	KeyWeeklyReportEnabled:       "true",
}

// DefaultValues returns a copy of the raw default for every known key.
func DefaultValues() map[string]string {
	out := make(map[string]string, len(defaultValues))
	for k, v := range defaultValues {
		out[k] = v
	}
	return out
}

// =============================================================================
// TYPED SETTINGS
// =============================================================================

type Settings struct {
	DuplicateDetectionEnabled bool
	DuplicateThreshold        decimal.Decimal
	OverloadDetectionEnabled  bool
	OverloadThreshold         int
	EventRemindersEnabled     bool
	ReminderDays              []int // descending, unique
	AnomalyDetectionEnabled   bool
	WeeklyReportEnabled       bool
}

func DefaultSettings() Settings {
	s, _ := ParseSettings(nil)
	return s
}

// ParseSettings overlays raw on the defaults. Unknown keys are ignored. A
// value that does not parse keeps its default and is reported in the joined
// error, so callers always get a usable Settings.
func ParseSettings(raw map[string]string) (Settings, error) {
	merged := DefaultValues()
	for k, v := range raw {
		if _, known := merged[k]; known {
			merged[k] = v
		}
	}

	var errs []error
	for k, v := range merged {
		if err := ValidateSetting(k, v); err != nil {
			errs = append(errs, err)
			merged[k] = defaultValues[k]
		}
	}

	s := Settings{
		DuplicateDetectionEnabled: merged[KeyDuplicateDetectionEnabled] == "true",
		DuplicateThreshold:        decimal.RequireFromString(merged[KeyDuplicateThreshold]),
		OverloadDetectionEnabled:  merged[KeyOverloadDetectionEnabled] == "true",
		EventRemindersEnabled:     merged[KeyEventRemindersEnabled] == "true",
		AnomalyDetectionEnabled:   merged[KeyAnomalyDetectionEnabled] == "true",
		WeeklyReportEnabled:       merged[KeyWeeklyReportEnabled] == "true",
	}
	s.OverloadThreshold, _ = strconv.Atoi(merged[KeyOverloadThreshold])
	s.ReminderDays, _ = parseReminderDays(merged[KeyReminderDays])
	return s, errors.Join(errs...)
}

// ValidateSetting checks that key is known and value parses for its type.
func ValidateSetting(key, value string) error {
	invalid := func(msg string) error {
		return &generic.ValidationError{Field: key, Message: msg}
	}

	switch key {
	case KeyDuplicateDetectionEnabled, KeyOverloadDetectionEnabled, KeyEventRemindersEnabled,
		KeyAnomalyDetectionEnabled, KeyWeeklyReportEnabled:
		if value != "true" && value != "false" {
			return invalid(fmt.Sprintf("must be true or false, got %q", value))
		}
	case KeyDuplicateThreshold:
		d, err := decimal.NewFromString(value)
		if err != nil || d.LessThan(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(1)) {
			return invalid(fmt.Sprintf("must be a number between 0 and 1, got %q", value))
		}
	case KeyOverloadThreshold:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return invalid(fmt.Sprintf("must be a positive integer, got %q", value))
		}
	case KeyReminderDays:
		if _, err := parseReminderDays(value); err != nil {
			return invalid(err.Error())
		}
	default:
		return invalid("unknown setting")
	}
	return nil
}

// parseReminderDays parses "30,14,7" into descending unique positive days.
func parseReminderDays(value string) ([]int, error) {
	seen := make(map[int]bool)
	var days []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid reminder day %q", part)
		}
		if !seen[n] {
			seen[n] = true
			days = append(days, n)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one reminder day is required")
	}
	sort.Sort(sort.Reverse(sort.IntSlice(days)))
	return days, nil
}
