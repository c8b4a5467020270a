package machine

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/medturn/portal/service"
)

// The scheduling service speaks canonical upper-case day names; the UI speaks
// localized (Spanish) ones. Both directions are total functions over the
// seven days: every canonical name has exactly one localized form and every
// localized form maps back, so a 7-day availability shape is never partially
// translated. Unknown names pass through unchanged.

var serverDays = [7]string{
	"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY",
}

var localizedDays = [7]string{
	"Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado", "Domingo",
}

var fold = cases.Fold()

// foldedToServer matches localized input caselessly, tolerating missing
// accents in stored data.
var foldedToServer = func() map[string]string {
	m := map[string]string{}
	for i, name := range localizedDays {
		m[fold.String(name)] = serverDays[i]
	}
	m[fold.String("Miercoles")] = "WEDNESDAY"
	m[fold.String("Sabado")] = "SATURDAY"
	return m
}()

var foldedToLocalized = func() map[string]string {
	m := map[string]string{}
	for i, name := range serverDays {
		m[fold.String(name)] = localizedDays[i]
	}
	return m
}()

// LocalizedDay translates a canonical server day name to its localized form.
func LocalizedDay(server string) string {
	if name, ok := foldedToLocalized[fold.String(server)]; ok {
		return name
	}
	return server
}

// ServerDay translates a localized day name back to canonical server form.
func ServerDay(localized string) string {
	if name, ok := foldedToServer[fold.String(localized)]; ok {
		return name
	}
	return localized
}

// DaySlot is one localized weekday's availability as the doctor edits it.
type DaySlot struct {
	Day     string
	Slots   []string
	Enabled bool
}

// defaultWeek returns the fixed 7-day availability shape, all days present
// and disabled. Availability is never partially populated.
func defaultWeek() []DaySlot {
	week := make([]DaySlot, len(localizedDays))
	for i, day := range localizedDays {
		week[i] = DaySlot{Day: day}
	}
	return week
}

// localizeWeek derives the full localized week from server-form availability.
// Days absent from the input stay present and disabled.
func localizeWeek(days []service.DayAvailability) []DaySlot {
	week := defaultWeek()
	index := map[string]int{}
	for i, slot := range week {
		index[fold.String(slot.Day)] = i
	}
	for _, day := range days {
		localized := LocalizedDay(day.Day)
		i, ok := index[fold.String(localized)]
		if !ok {
			continue
		}
		week[i] = DaySlot{Day: localized, Slots: append([]string(nil), day.Slots...), Enabled: day.Enabled}
	}
	return week
}

// serverWeek translates the localized week back to server form for saving.
func serverWeek(week []DaySlot) []service.DayAvailability {
	days := make([]service.DayAvailability, len(week))
	for i, slot := range week {
		days[i] = service.DayAvailability{
			Day:     ServerDay(slot.Day),
			Slots:   append([]string(nil), slot.Slots...),
			Enabled: slot.Enabled,
		}
	}
	return days
}

// Keywords marking a notification as bad news, matched caselessly as
// substrings. Rejection outranks cancellation.
var (
	rejectionKeywords    = []string{"rechaz", "rejected"}
	cancellationKeywords = []string{"cancelad", "cancelled", "canceled"}
)

// MessageSeverity classifies a notification message for snackbar display.
func MessageSeverity(message string) string {
	folded := fold.String(message)
	for _, kw := range rejectionKeywords {
		if strings.Contains(folded, kw) {
			return SeverityError
		}
	}
	for _, kw := range cancellationKeywords {
		if strings.Contains(folded, kw) {
			return SeverityWarning
		}
	}
	return SeverityInfo
}
