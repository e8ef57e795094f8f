package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/engine/store"
)

const hoursSheet = engine.SheetID("sheet-hours")

func newAllocator(mem *store.Memory) *engine.OvertimeAllocator {
	return &engine.OvertimeAllocator{Timesheets: mem}
}

// =============================================================================
// FULL CALENDAR WEEK
// =============================================================================

func TestAllocate_FullWeekOvertime(t *testing.T) {
	// GIVEN: A Monday-Sunday period with 45 worked hours (9h x 5 days)
	// WHEN: Allocating at $25/h, 1.5x overtime, 4% vacation
	// THEN: 40 regular + 5 overtime; pay is 1000 + 187.50 + 47.50

	monday := engine.NewDate(2026, time.August, 3)
	period := engine.Period{Start: monday, End: monday.AddDays(6)}

	daily := make(map[engine.Date]int)
	for day := 0; day < 5; day++ {
		daily[monday.AddDays(day)] = 9 * 60
	}

	result, err := newAllocator(store.NewMemory()).Allocate(
		context.Background(), hoursSheet, "emp-dana", period, daily,
		engine.NewMoney(25), statutorySettings())
	require.NoError(t, err)

	assert.Equal(t, 40.0, result.RegularHours.Float64())
	assert.Equal(t, 5.0, result.OvertimeHours.Float64())
	assert.Equal(t, "1000.00", result.RegularPay.String())
	assert.Equal(t, "187.50", result.OvertimePay.String())
	assert.Equal(t, "47.50", result.VacationPay.String())
	assert.Equal(t, "1235.00", result.TotalPay().String())
}

func TestAllocate_UnderThresholdNoOvertime(t *testing.T) {
	// 38 hours in a full week stays entirely regular.
	monday := engine.NewDate(2026, time.August, 3)
	period := engine.Period{Start: monday, End: monday.AddDays(6)}

	daily := map[engine.Date]int{
		monday:            10 * 60,
		monday.AddDays(1): 10 * 60,
		monday.AddDays(2): 10 * 60,
		monday.AddDays(3): 8 * 60,
	}

	result, err := newAllocator(store.NewMemory()).Allocate(
		context.Background(), hoursSheet, "emp-dana", period, daily,
		engine.NewMoney(20), statutorySettings())
	require.NoError(t, err)

	assert.Equal(t, 38.0, result.RegularHours.Float64())
	assert.True(t, result.OvertimeHours.IsZero())
	assert.Equal(t, "760.00", result.RegularPay.String())
	assert.True(t, result.OvertimePay.IsZero())
	assert.Equal(t, "30.40", result.VacationPay.String())
}

// =============================================================================
// PARTIAL-START WEEK - Look-back across the period boundary
// =============================================================================

func TestAllocate_PartialStartWeekLooksBack(t *testing.T) {
	// GIVEN: A Wed-Tue period. Mon+Tue before the period carry 20 hours in the
	//        timesheet; Wed-Fri inside the period carry 24 hours (full week 44)
	// WHEN: Allocating
	// THEN: The week's 4 overtime hours land in this period; the trailing
	//       partial week never looks ahead past the period end

	mem := store.NewMemory()
	weekOneMonday := engine.NewDate(2026, time.August, 3)

	// Pre-period days, fetched by look-back only.
	mem.AddTimesheet(hoursSheet,
		engine.TimesheetEntry{UserID: "emp-dana", Date: weekOneMonday, Minutes: 10 * 60},
		engine.TimesheetEntry{UserID: "emp-dana", Date: weekOneMonday.AddDays(1), Minutes: 10 * 60},
	)
	// Post-period hours that must NOT be consulted.
	mem.AddTimesheet(hoursSheet,
		engine.TimesheetEntry{UserID: "emp-dana", Date: engine.NewDate(2026, time.August, 12), Minutes: 30 * 60},
	)

	period := engine.Period{
		Start: engine.NewDate(2026, time.August, 5),  // Wednesday
		End:   engine.NewDate(2026, time.August, 11), // Tuesday
	}
	daily := map[engine.Date]int{
		engine.NewDate(2026, time.August, 5):  8 * 60,
		engine.NewDate(2026, time.August, 6):  8 * 60,
		engine.NewDate(2026, time.August, 7):  8 * 60,
		engine.NewDate(2026, time.August, 10): 10 * 60,
		engine.NewDate(2026, time.August, 11): 10 * 60,
	}

	result, err := newAllocator(mem).Allocate(
		context.Background(), hoursSheet, "emp-dana", period, daily,
		engine.NewMoney(25), statutorySettings())
	require.NoError(t, err)

	// Week one: 44 total, 4 overtime, 20 of the in-period 24 regular.
	// Week two (partial end): 20 observed hours, all regular.
	assert.Equal(t, 40.0, result.RegularHours.Float64())
	assert.Equal(t, 4.0, result.OvertimeHours.Float64())
	assert.Equal(t, "1000.00", result.RegularPay.String())
	assert.Equal(t, "150.00", result.OvertimePay.String())
	assert.Equal(t, "46.00", result.VacationPay.String())
}

func TestAllocate_PartialStartShortfallAllOvertime(t *testing.T) {
	// GIVEN: 50 pre-period hours in the week; the period holds only Sunday's 3
	// WHEN: Allocating (week overtime 13 exceeds the 3 in-period hours)
	// THEN: Everything inside the period is overtime, regular floors at zero

	mem := store.NewMemory()
	monday := engine.NewDate(2026, time.August, 3)
	for day := 0; day < 5; day++ {
		mem.AddTimesheet(hoursSheet, engine.TimesheetEntry{
			UserID: "emp-dana", Date: monday.AddDays(day), Minutes: 10 * 60,
		})
	}

	sunday := engine.NewDate(2026, time.August, 9)
	period := engine.Period{Start: sunday, End: sunday}
	daily := map[engine.Date]int{sunday: 3 * 60}

	result, err := newAllocator(mem).Allocate(
		context.Background(), hoursSheet, "emp-dana", period, daily,
		engine.NewMoney(25), statutorySettings())
	require.NoError(t, err)

	assert.True(t, result.RegularHours.IsZero())
	assert.Equal(t, 3.0, result.OvertimeHours.Float64())
	assert.Equal(t, "112.50", result.OvertimePay.String())
}

func TestAllocate_PartialEndWeekNeverLooksAhead(t *testing.T) {
	// GIVEN: A Mon-Wed period with 30 hours; Thu-Fri after the period carry
	//        enough hours to push the full week over 40
	// WHEN: Allocating
	// THEN: No overtime, because trailing-boundary hours are deferred to the
	//       next period's look-back

	mem := store.NewMemory()
	monday := engine.NewDate(2026, time.August, 3)
	mem.AddTimesheet(hoursSheet,
		engine.TimesheetEntry{UserID: "emp-dana", Date: monday.AddDays(3), Minutes: 10 * 60},
		engine.TimesheetEntry{UserID: "emp-dana", Date: monday.AddDays(4), Minutes: 10 * 60},
	)

	period := engine.Period{Start: monday, End: monday.AddDays(2)}
	daily := map[engine.Date]int{
		monday:            10 * 60,
		monday.AddDays(1): 10 * 60,
		monday.AddDays(2): 10 * 60,
	}

	result, err := newAllocator(mem).Allocate(
		context.Background(), hoursSheet, "emp-dana", period, daily,
		engine.NewMoney(25), statutorySettings())
	require.NoError(t, err)

	assert.Equal(t, 30.0, result.RegularHours.Float64())
	assert.True(t, result.OvertimeHours.IsZero())
}

// =============================================================================
// CALENDAR WEEK PARTITIONING
// =============================================================================

func TestCalendarWeeks_MondayAnchored(t *testing.T) {
	// A Wed-Tue period spans two Monday-anchored weeks with the right flags.
	period := engine.Period{
		Start: engine.NewDate(2026, time.August, 5),
		End:   engine.NewDate(2026, time.August, 11),
	}

	weeks := period.CalendarWeeks()
	require.Len(t, weeks, 2)

	assert.Equal(t, engine.NewDate(2026, time.August, 3), weeks[0].Start)
	assert.True(t, weeks[0].PartialStart)
	assert.False(t, weeks[0].PartialEnd)

	assert.Equal(t, engine.NewDate(2026, time.August, 10), weeks[1].Start)
	assert.False(t, weeks[1].PartialStart)
	assert.True(t, weeks[1].PartialEnd)

	assert.Len(t, weeks[0].DaysOutside(period), 2)
	assert.Len(t, weeks[0].DaysInside(period), 5)
}
