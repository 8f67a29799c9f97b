package formula

import (
	"math"
	"time"

	"github.com/roach88/gridcalc/internal/value"
)

// Dates are serial day counts from 1899-12-30, so serial 25569 is the Unix
// epoch and the fractional part is the time of day.
const (
	UnixEpochSerial = 25569
	msPerDay        = 86400000
)

// SerialFromTime converts a wall-clock time to a serial date. The time's
// own location supplies the calendar fields.
func SerialFromTime(t time.Time) float64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return float64(wall.UnixMilli())/msPerDay + UnixEpochSerial
}

// TimeFromSerial converts a serial date to a UTC time, rounded to the
// millisecond.
func TimeFromSerial(serial float64) time.Time {
	ms := math.Round((serial - UnixEpochSerial) * msPerDay)
	return time.UnixMilli(int64(ms)).UTC()
}

func dateSerial(year int, month time.Month, day int) float64 {
	return SerialFromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func registerDate(l *Library) {
	l.Register("DATE", fnDate)
	l.Register("TODAY", fnToday)
	l.Register("NOW", fnNow)
	l.Register("DAY", datePart(func(t time.Time) int { return t.Day() }))
	l.Register("MONTH", datePart(func(t time.Time) int { return int(t.Month()) }))
	l.Register("YEAR", datePart(func(t time.Time) int { return t.Year() }))
	l.Register("WEEKDAY", fnWeekday)
	l.Register("WEEKNUM", fnWeekNum)
	l.Register("EOMONTH", fnEOMonth)
	l.Register("EDATE", fnEDate)
	l.Register("NETWORKDAYS", fnNetworkDays)
}

// dateArg reads a serial date argument, dropping the time of day.
func dateArg(args []Thunk, i int, ctx *Context) (time.Time, *value.Error) {
	f, err := number(args, i, ctx)
	if err != nil {
		return time.Time{}, err
	}
	if f < 0 {
		return time.Time{}, value.Errorf(value.CodeNum, "date serial %s is negative", value.FormatNumber(f))
	}
	return TimeFromSerial(math.Floor(f)), nil
}

func fnDate(args []Thunk, ctx *Context) value.Value {
	if err := arity("DATE", args, 3, 3); err != nil {
		return err
	}
	y, err := integer(args, 0, ctx)
	if err != nil {
		return err
	}
	m, err := integer(args, 1, ctx)
	if err != nil {
		return err
	}
	d, err := integer(args, 2, ctx)
	if err != nil {
		return err
	}
	if y >= 0 && y < 1900 {
		y += 1900
	}
	if y < 0 || y > 9999 {
		return value.Errorf(value.CodeNum, "DATE: year %d out of range", y)
	}
	serial := dateSerial(y, time.Month(m), d)
	if serial < 0 {
		return value.Errorf(value.CodeNum, "DATE: before the epoch")
	}
	return value.Number(serial)
}

func fnToday(args []Thunk, ctx *Context) value.Value {
	if err := arity("TODAY", args, 0, 0); err != nil {
		return err
	}
	now := ctx.now()
	return value.Number(dateSerial(now.Year(), now.Month(), now.Day()))
}

func fnNow(args []Thunk, ctx *Context) value.Value {
	if err := arity("NOW", args, 0, 0); err != nil {
		return err
	}
	return value.Number(SerialFromTime(ctx.now()))
}

func datePart(part func(time.Time) int) Func {
	return func(args []Thunk, ctx *Context) value.Value {
		if err := arity("date part", args, 1, 1); err != nil {
			return err
		}
		t, err := dateArg(args, 0, ctx)
		if err != nil {
			return err
		}
		return value.Number(part(t))
	}
}

// weekStart maps WEEKDAY/WEEKNUM return-type codes 11-17 to the weekday
// that starts the week.
func weekStart(code int) (time.Weekday, bool) {
	switch {
	case code == 1:
		return time.Sunday, true
	case code == 2:
		return time.Monday, true
	case code >= 11 && code <= 17:
		return time.Weekday((code - 10) % 7), true
	}
	return 0, false
}

func fnWeekday(args []Thunk, ctx *Context) value.Value {
	if err := arity("WEEKDAY", args, 1, 2); err != nil {
		return err
	}
	t, err := dateArg(args, 0, ctx)
	if err != nil {
		return err
	}
	code, err := integerOr(args, 1, ctx, 1)
	if err != nil {
		return err
	}
	wd := int(t.Weekday())
	if code == 3 {
		return value.Number((wd + 6) % 7)
	}
	start, ok := weekStart(code)
	if !ok {
		return value.Errorf(value.CodeNum, "WEEKDAY: return type %d", code)
	}
	return value.Number((wd-int(start)+7)%7 + 1)
}

// fnWeekNum numbers weeks so that the week holding January 1 is week 1.
// Code 21 is the ISO 8601 week number.
func fnWeekNum(args []Thunk, ctx *Context) value.Value {
	if err := arity("WEEKNUM", args, 1, 2); err != nil {
		return err
	}
	t, err := dateArg(args, 0, ctx)
	if err != nil {
		return err
	}
	code, err := integerOr(args, 1, ctx, 1)
	if err != nil {
		return err
	}
	if code == 21 {
		_, week := t.ISOWeek()
		return value.Number(week)
	}
	start, ok := weekStart(code)
	if !ok {
		return value.Errorf(value.CodeNum, "WEEKNUM: return type %d", code)
	}
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(jan1.Weekday()) - int(start) + 7) % 7
	return value.Number((t.YearDay()-1+offset)/7 + 1)
}

func monthsArg(args []Thunk, ctx *Context) (time.Time, int, *value.Error) {
	t, err := dateArg(args, 0, ctx)
	if err != nil {
		return time.Time{}, 0, err
	}
	months, err := integer(args, 1, ctx)
	if err != nil {
		return time.Time{}, 0, err
	}
	return t, months, nil
}

func fnEOMonth(args []Thunk, ctx *Context) value.Value {
	if err := arity("EOMONTH", args, 2, 2); err != nil {
		return err
	}
	t, months, err := monthsArg(args, ctx)
	if err != nil {
		return err
	}
	serial := dateSerial(t.Year(), t.Month()+time.Month(months)+1, 0)
	if serial < 0 {
		return value.Err(value.CodeNum)
	}
	return value.Number(serial)
}

// fnEDate moves a date by whole months, clamping to the target month's
// last day.
func fnEDate(args []Thunk, ctx *Context) value.Value {
	if err := arity("EDATE", args, 2, 2); err != nil {
		return err
	}
	t, months, err := monthsArg(args, ctx)
	if err != nil {
		return err
	}
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	serial := dateSerial(first.Year(), first.Month(), min(t.Day(), last))
	if serial < 0 {
		return value.Err(value.CodeNum)
	}
	return value.Number(serial)
}

// fnNetworkDays counts Monday-to-Friday days between two dates inclusive,
// minus holidays. The count is negative when end precedes start.
func fnNetworkDays(args []Thunk, ctx *Context) value.Value {
	if err := arity("NETWORKDAYS", args, 2, 3); err != nil {
		return err
	}
	start, err := dateArg(args, 0, ctx)
	if err != nil {
		return err
	}
	end, err := dateArg(args, 1, ctx)
	if err != nil {
		return err
	}
	holidays := map[float64]bool{}
	if len(args) > 2 {
		hs, err := numbers(args[2:3], ctx)
		if err != nil {
			return err
		}
		for _, h := range hs {
			holidays[math.Floor(h)] = true
		}
	}

	sign := 1
	if end.Before(start) {
		start, end = end, start
		sign = -1
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if holidays[SerialFromTime(d)] {
			continue
		}
		n++
	}
	return value.Number(sign * n)
}
