package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/gridcalc/internal/value"
)

func TestSerialConversion(t *testing.T) {
	assert.Equal(t, float64(UnixEpochSerial), SerialFromTime(time.Unix(0, 0).UTC()))
	assert.Equal(t, 45292.0, SerialFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 45292.5, SerialFromTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))

	// calendar fields, not the instant, decide the serial
	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, 45292.0, SerialFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, tokyo)))

	assert.Equal(t, time.Date(2024, 2, 29, 6, 0, 0, 0, time.UTC), TimeFromSerial(45351.25))
}

func TestDate(t *testing.T) {
	requireNumber(t, 45322, call(t, "DATE", lit(2024), lit(1), lit(31)))
	requireNumber(t, 45351, call(t, "DATE", lit(2024), lit(2), lit(29)))
	requireNumber(t, 45658, call(t, "DATE", lit(2024), lit(13), lit(1)))
	requireNumber(t, 43831, call(t, "DATE", lit(120), lit(1), lit(1)))
	requireCode(t, value.CodeNum, call(t, "DATE", lit(10000), lit(1), lit(1)))

	requireNumber(t, 2024, call(t, "YEAR", lit(45351)))
	requireNumber(t, 2, call(t, "MONTH", lit(45351)))
	requireNumber(t, 29, call(t, "DAY", lit(45351.9)))
	requireCode(t, value.CodeNum, call(t, "DAY", lit(-1)))
}

func TestTodayAndNow(t *testing.T) {
	// the test clock is frozen at 2024-01-01 12:00 UTC
	requireNumber(t, 45292, call(t, "TODAY"))
	requireNumber(t, 45292.5, call(t, "NOW"))
	requireCode(t, value.CodeValue, call(t, "TODAY", lit(1)))
}

func TestWeekday(t *testing.T) {
	monday := lit(45292) // 2024-01-01

	tests := []struct {
		code int
		want float64
	}{
		{1, 2}, {2, 1}, {3, 0}, {11, 1}, {12, 7}, {16, 3}, {17, 2},
	}
	for _, tt := range tests {
		requireNumber(t, tt.want, call(t, "WEEKDAY", monday, lit(tt.code)))
	}
	requireNumber(t, 2, call(t, "WEEKDAY", monday))
	requireCode(t, value.CodeNum, call(t, "WEEKDAY", monday, lit(5)))
}

func TestWeekNum(t *testing.T) {
	sunday := lit(45298) // 2024-01-07

	requireNumber(t, 2, call(t, "WEEKNUM", sunday))
	requireNumber(t, 1, call(t, "WEEKNUM", sunday, lit(2)))
	requireNumber(t, 1, call(t, "WEEKNUM", sunday, lit(11)))
	requireNumber(t, 2, call(t, "WEEKNUM", sunday, lit(17)))
	requireNumber(t, 1, call(t, "WEEKNUM", lit(45292), lit(1)))
	// 2021-01-01 belongs to ISO week 53 of 2020
	requireNumber(t, 53, call(t, "WEEKNUM", lit(44197), lit(21)))
	requireCode(t, value.CodeNum, call(t, "WEEKNUM", sunday, lit(9)))
}

func TestMonthArithmetic(t *testing.T) {
	mid := lit(45306) // 2024-01-15

	requireNumber(t, 45351, call(t, "EOMONTH", mid, lit(1)))
	requireNumber(t, 45291, call(t, "EOMONTH", mid, lit(-1)))
	requireNumber(t, 45322, call(t, "EOMONTH", mid, lit(0)))

	requireNumber(t, 45351, call(t, "EDATE", lit(45322), lit(1)))
	requireNumber(t, 45337, call(t, "EDATE", mid, lit(1)))
}

func TestNetworkDays(t *testing.T) {
	mon, sun := lit(45292), lit(45298)

	requireNumber(t, 5, call(t, "NETWORKDAYS", mon, sun))
	requireNumber(t, -5, call(t, "NETWORKDAYS", sun, mon))
	requireNumber(t, 4, call(t, "NETWORKDAYS", mon, sun, col(45292)))
	requireNumber(t, 0, call(t, "NETWORKDAYS", lit(45297), sun))
}
