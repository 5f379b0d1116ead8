package nominal

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"
)

// HolidayCalendar wraps a business calendar of the holidays observed by the
// transit agency (§4.1: candidate lookups and temporal match scoring both
// lean on whatever the nominal schedule considers a holiday/reduced service
// day), grounded on the teacher's own transitHolidayCalendar.
type HolidayCalendar struct {
	calendar *cal.BusinessCalendar
}

// NewHolidayCalendar builds a HolidayCalendar observing Germany's nationwide
// public holidays, the closest stand-in available for an arbitrary German
// ITCS deployment absent a per-agency holiday feed.
func NewHolidayCalendar() *HolidayCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(
		de.NewYear,
		de.GoodFriday,
		de.EasterMonday,
		de.LabourDay,
		de.AscensionDay,
		de.WhitMonday,
		de.GermanUnityDay,
		de.ChristmasDay1,
		de.ChristmasDay2,
	)
	return &HolidayCalendar{calendar: calendar}
}

// IsHoliday reports whether at falls on an observed holiday.
func (h *HolidayCalendar) IsHoliday(at time.Time) bool {
	if h == nil || h.calendar == nil {
		return false
	}
	_, observed, _ := h.calendar.IsHoliday(at)
	return observed
}
