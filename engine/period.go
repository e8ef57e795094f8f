package engine

// =============================================================================
// PERIOD - The pay-period boundary for one computation
// =============================================================================

// Period is an inclusive date range [Start, End]. All earnings, deductions
// and sharing figures are computed for exactly one period.
type Period struct {
	Start Date
	End   Date
}

// Valid reports whether the period is well-formed.
func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && p.Start.BeforeOrEqual(p.End)
}

// Contains returns true if the date is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []Date {
	var days []Date
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// DayCount returns the period length in days, inclusive of both ends.
// Deduction annualization uses this figure.
func (p Period) DayCount() int {
	return DaysBetween(p.Start, p.End) + 1
}

// ContainsMonthEnd reports whether any day in the period is the last calendar
// day of a month. Rent deductions fire only on such periods.
func (p Period) ContainsMonthEnd() bool {
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		if d.IsMonthEnd() {
			return true
		}
	}
	return false
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// CALENDAR WEEKS - Overtime is evaluated per Monday-anchored week
// =============================================================================

// CalendarWeek is one Monday-Sunday week intersecting a pay period. Partial
// flags drive the overtime look-back policy: partial-start weeks fetch the
// missing pre-period days, partial-end weeks never look ahead.
type CalendarWeek struct {
	Start        Date // Monday
	End          Date // Sunday
	PartialStart bool // week begins before the pay period
	PartialEnd   bool // week ends after the pay period
}

// DaysOutside returns the week's days that fall outside the period. For
// partial-start weeks these are the dates fetched separately from the
// timesheet source.
func (w CalendarWeek) DaysOutside(p Period) []Date {
	var days []Date
	for d := w.Start; d.BeforeOrEqual(w.End); d = d.AddDays(1) {
		if !p.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// DaysInside returns the week's days that fall inside the period.
func (w CalendarWeek) DaysInside(p Period) []Date {
	var days []Date
	for d := w.Start; d.BeforeOrEqual(w.End); d = d.AddDays(1) {
		if p.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// CalendarWeeks partitions the period into the calendar weeks intersecting it.
func (p Period) CalendarWeeks() []CalendarWeek {
	var weeks []CalendarWeek
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		weekStart := current.WeekStart()
		weekEnd := weekStart.AddDays(6)
		weeks = append(weeks, CalendarWeek{
			Start:        weekStart,
			End:          weekEnd,
			PartialStart: weekStart.Before(p.Start),
			PartialEnd:   weekEnd.After(p.End),
		})
		current = weekEnd.AddDays(1)
	}
	return weeks
}
