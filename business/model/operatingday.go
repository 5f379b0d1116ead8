package model

import (
	"fmt"
	"time"
)

// DefaultOperatingDayEnd is the configurable cutoff (HH:MM:SS, may exceed
// 24:00:00) after which a calendar day is still considered part of the
// previous operating day.
const DefaultOperatingDayEnd = "27:00:00"

// getDSTTransitionSeconds returns the offset, in seconds, a midnight-anchored
// schedule time must be corrected by to account for a daylight-saving
// transition occurring before 5am on that day. Adapted from the teacher's
// MakeScheduleTime helper.
func getDSTTransitionSeconds(midnight time.Time) int {
	before := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 0, 0, 0, 0, midnight.Location())
	after := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 5, 0, 0, 0, midnight.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// OperatingDayMidnight returns 00:00:00 of the operating day `at` belongs to,
// given operatingDayEndSeconds (the configured OPERATING_DAY_END expressed as
// seconds past midnight, e.g. 27*3600 for "27:00:00"). A timestamp before the
// cutoff on the calendar day still belongs to the previous operating day.
func OperatingDayMidnight(at time.Time, operatingDayEndSeconds int) time.Time {
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	secondsSinceMidnight := at.Sub(midnight).Seconds()
	if int(secondsSinceMidnight) < operatingDayEndSeconds-24*3600 {
		midnight = midnight.AddDate(0, 0, -1)
	}
	return midnight
}

// OperatingDaySeconds converts an absolute time into seconds relative to the
// midnight of its operating day, accounting for DST transitions the same way
// the teacher's MakeScheduleTime does in reverse.
func OperatingDaySeconds(at time.Time, operatingDayMidnight time.Time) int {
	offset := getDSTTransitionSeconds(operatingDayMidnight)
	return int(at.Sub(operatingDayMidnight).Seconds()) + offset
}

// OperatingDayTime is the inverse of OperatingDaySeconds: it reconstructs the
// absolute time for a schedule offset anchored to operatingDayMidnight.
func OperatingDayTime(operatingDayMidnight time.Time, scheduleSeconds int) time.Time {
	offset := getDSTTransitionSeconds(operatingDayMidnight)
	return operatingDayMidnight.Add(time.Duration(scheduleSeconds-offset) * time.Second)
}

// FormatOperatingDaySeconds renders seconds-past-operating-day-midnight as
// HH:MM:SS, allowing HH to exceed 24 for trips that run past midnight.
func FormatOperatingDaySeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatOperatingDayDate renders an operating day midnight as YYYYMMDD.
func FormatOperatingDayDate(operatingDayMidnight time.Time) string {
	return operatingDayMidnight.Format("20060102")
}

// ParseOperatingDayEnd parses an HH:MM:SS string (hours may exceed 24, as in
// DefaultOperatingDayEnd) into seconds past midnight.
func ParseOperatingDayEnd(value string) (int, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(value, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("model: invalid operating day end %q: %w", value, err)
	}
	return h*3600 + m*60 + s, nil
}
