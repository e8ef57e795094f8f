/*
overtime.go - Week-based overtime and vacation pay allocator

PURPOSE:
  Splits a period's worked hours into regular and overtime per Monday-Sunday
  calendar week, then prices them and adds vacation pay. The overtime
  threshold is 40 hours per calendar week, anchored to the calendar, not to
  pay-period boundaries.

PARTIAL-WEEK POLICY (deliberately backward-looking):
  - Partial-start week: pre-period days are fetched separately so the FULL
    week total is known. All of that week's overtime is attributed to this
    period; regular hours are the period's hours minus that overtime,
    floored at zero with any shortfall pushed into overtime.
  - Partial-end week: no look-ahead. Only hours observed inside the period
    count as the week total, so trailing-boundary overtime is deferred to
    the next period's partial-start handling.
  This asymmetry avoids double-counting hours across adjacent pay periods at
  the cost of slightly under-detecting overtime at trailing boundaries. It
  is a documented tradeoff, not a defect. Note the deferral assumes the next
  period's payroll is eventually generated; hours are not re-examined
  otherwise.

SEE ALSO:
  - period.go: Calendar-week partitioning
  - calculator.go: Hourly strategies driving this allocator
*/
package engine

import (
	"context"
)

var weeklyOvertimeThreshold = NewHours(40)

// OvertimeResult is the priced outcome of one allocation pass.
type OvertimeResult struct {
	RegularHours  Hours
	OvertimeHours Hours
	RegularPay    Money
	OvertimePay   Money
	VacationPay   Money
}

// TotalPay returns regular + overtime + vacation pay.
func (r OvertimeResult) TotalPay() Money {
	return r.RegularPay.Add(r.OvertimePay).Add(r.VacationPay)
}

// OvertimeAllocator splits hours into regular/overtime per calendar week.
// The timesheet source is consulted only for partial-start-week look-back,
// scoped to exactly the missing dates.
type OvertimeAllocator struct {
	Timesheets TimesheetSource
}

// Allocate processes every calendar week intersecting the period.
// dailyMinutes holds the period's already-fetched timesheet data.
func (a *OvertimeAllocator) Allocate(
	ctx context.Context,
	sheetID SheetID,
	userID UserID,
	period Period,
	dailyMinutes map[Date]int,
	wage Money,
	settings *SiteSettings,
) (OvertimeResult, error) {

	regular := ZeroHours
	overtime := ZeroHours

	for _, week := range period.CalendarWeeks() {
		inPeriod := hoursForDates(dailyMinutes, week.DaysInside(period))

		var fullWeek Hours
		switch {
		case week.PartialStart:
			outside, err := a.lookBack(ctx, sheetID, userID, week, period)
			if err != nil {
				return OvertimeResult{}, err
			}
			fullWeek = inPeriod.Add(outside)

		case week.PartialEnd:
			// No look-ahead: the week total is what has been observed so far.
			fullWeek = inPeriod

		default:
			fullWeek = inPeriod
		}

		weekRegular, weekOvertime := splitWeek(week, fullWeek, inPeriod)
		regular = regular.Add(weekRegular)
		overtime = overtime.Add(weekOvertime)
	}

	regularPay := regular.PayAt(wage)
	overtimePay := overtime.PayAt(wage).Mul(settings.OvertimeMultiplier)
	vacationPay := regularPay.Add(overtimePay).Mul(settings.VacationRate)

	return OvertimeResult{
		RegularHours:  regular,
		OvertimeHours: overtime,
		RegularPay:    regularPay,
		OvertimePay:   overtimePay,
		VacationPay:   vacationPay,
	}, nil
}

// lookBack fetches hours for the week's pre-period days only.
func (a *OvertimeAllocator) lookBack(ctx context.Context, sheetID SheetID, userID UserID, week CalendarWeek, period Period) (Hours, error) {
	missing := week.DaysOutside(period)
	if len(missing) == 0 {
		return ZeroHours, nil
	}
	fetched, err := a.Timesheets.HoursForDates(ctx, sheetID, userID, missing)
	if err != nil {
		return ZeroHours, &FetchError{Feed: "timesheet look-back", Period: Period{Start: week.Start, End: week.End}, Err: err}
	}
	return hoursForDates(fetched, missing), nil
}

// splitWeek applies the 40-hour threshold to one week's totals.
func splitWeek(week CalendarWeek, fullWeek, inPeriod Hours) (regular, overtime Hours) {
	if !fullWeek.GreaterThan(weeklyOvertimeThreshold) {
		return inPeriod, ZeroHours
	}

	weekOvertime := fullWeek.Sub(weeklyOvertimeThreshold)

	if week.PartialStart {
		// All of the week's overtime lands in this period. If the period
		// holds fewer hours than the overtime, everything here is overtime.
		regular = inPeriod.Sub(weekOvertime)
		overtime = weekOvertime
		if regular.IsNegative() {
			regular = ZeroHours
			overtime = inPeriod
		}
		return regular, overtime
	}

	overtime = inPeriod.Sub(weeklyOvertimeThreshold)
	if overtime.IsNegative() {
		overtime = ZeroHours
	}
	regular = inPeriod.Min(weeklyOvertimeThreshold)
	return regular, overtime
}

func hoursForDates(minutes map[Date]int, dates []Date) Hours {
	total := ZeroHours
	for _, d := range dates {
		if m, ok := minutes[d]; ok {
			total = total.Add(HoursFromMinutes(m))
		}
	}
	return total
}

// totalHours sums every entry of a fetched daily map.
func totalHours(minutes map[Date]int) Hours {
	total := ZeroHours
	for _, m := range minutes {
		total = total.Add(HoursFromMinutes(m))
	}
	return total
}

// VacationPayOn computes vacation pay on a commission income base (no
// overtime component for commission employees).
func VacationPayOn(income Money, settings *SiteSettings) Money {
	return income.Mul(settings.VacationRate)
}
