// Package lifecycle holds the date arithmetic and status rules of a storage order.
// Everything here is a pure function of its inputs; callers supply "now".
package lifecycle

import (
	"math"
	"regexp"
	"time"

	"github.com/ticrm/tire-storage-api/models"
)

const (
	// ReminderLeadDays is how long before the end date a client is reminded.
	ReminderLeadDays = 30
	// ExpiringWindowDays is the largest days-until-end still reported as expiring.
	ExpiringWindowDays = 30

	orderNumberLayout = "060102-150405"
	day               = 24 * time.Hour
)

var orderNumberPattern = regexp.MustCompile(`^\d{6}-\d{6}$`)

// OrderNumber formats t as YYMMDD-HHMMSS in loc.
func OrderNumber(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(orderNumberLayout)
}

func IsOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}

// EndDate adds calendar months. Like AddDate, overflowing days roll into the
// following month (Jan 31 + 1 month = Mar 2 or 3).
func EndDate(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0)
}

func ReminderDate(end time.Time) time.Time {
	return end.AddDate(0, 0, -ReminderLeadDays)
}

// Dates derives the end and reminder dates for a storage period.
func Dates(start time.Time, months int) (end, reminder time.Time) {
	end = EndDate(start, months)
	return end, ReminderDate(end)
}

// DaysUntil returns ceil((end - now) / 24h).
func DaysUntil(end, now time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// DeriveStatus maps the time remaining until end to a date-based status.
func DeriveStatus(end, now time.Time) string {
	days := DaysUntil(end, now)
	switch {
	case days < 0:
		return models.OrderStatusOverdue
	case days <= ExpiringWindowDays:
		return models.OrderStatusExpiring
	default:
		return models.OrderStatusActive
	}
}

// Resolve returns the status an order should carry at now. Completed is
// terminal and is returned unchanged.
func Resolve(current string, end, now time.Time) string {
	if current == models.OrderStatusCompleted {
		return current
	}
	return DeriveStatus(end, now)
}

// Window is the range of end dates that derive to a given status at a fixed
// instant. A nil bound is open.
type Window struct {
	Status string
	After  *time.Time // end > After
	AtMost *time.Time // end <= AtMost
}

// StatusWindows expresses DeriveStatus as end-date ranges so persisted
// statuses can be synchronised with one UPDATE per status.
//
//	overdue:  end <= now-24h
//	expiring: now-24h < end <= now+30d
//	active:   end > now+30d
func StatusWindows(now time.Time) []Window {
	overdueBound := now.Add(-day)
	activeBound := now.Add(ExpiringWindowDays * day)
	return []Window{
		{Status: models.OrderStatusOverdue, AtMost: &overdueBound},
		{Status: models.OrderStatusExpiring, After: &overdueBound, AtMost: &activeBound},
		{Status: models.OrderStatusActive, After: &activeBound},
	}
}

// CanTransition reports whether the state machine allows from -> to.
// active <-> expiring -> overdue, any open state -> completed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case models.OrderStatusActive:
		return to == models.OrderStatusExpiring || to == models.OrderStatusOverdue || to == models.OrderStatusCompleted
	case models.OrderStatusExpiring:
		return to == models.OrderStatusActive || to == models.OrderStatusOverdue || to == models.OrderStatusCompleted
	case models.OrderStatusOverdue:
		return to == models.OrderStatusCompleted
	}
	return false
}
