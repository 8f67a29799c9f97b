package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridcalc/internal/value"
)

func TestFormatValue_Numbers(t *testing.T) {
	tests := []struct {
		v       value.Value
		pattern string
		want    string
	}{
		{value.Number(1234.567), "#,##0.00", "1,234.57"},
		{value.Number(0.256), "0.0%", "25.6%"},
		{value.Number(1234567), "#,##0,", "1,235"},
		{value.Number(1234567), `#,##0.0,,"M"`, "1.2M"},
		{value.Number(12345), "0.00E+00", "1.23E+04"},
		{value.Number(0.00012), "0.0E+0", "1.2E-4"},
		{value.Number(-5), "0.00;(0.00)", "(5.00)"},
		{value.Number(-5), "0.00", "-5.00"},
		{value.Number(0), `0;-0;"zero"`, "zero"},
		{value.Number(5), "000", "005"},
		{value.Number(0.5), "#.0", ".5"},
		{value.Number(2.5), "0", "3"},
		{value.Number(1.5), "0.0#", "1.5"},
		{value.Number(1.25), "0.0#", "1.25"},
		{value.Blank{}, "0.00", "0.00"},
		{value.Number(0.1), "General", "0.1"},
		{value.Text("abc"), `"Name: "@`, "Name: abc"},
		{value.Text("abc"), "0;0;0;[@]", "[abc]"},
		{value.Text("abc"), "0.00", "abc"},
		{value.Text("12"), "0.00", "12.00"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := FormatValue(tt.v, tt.pattern)
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue_Dates(t *testing.T) {
	leap := SerialFromTime(time.Date(2024, 2, 29, 13, 5, 9, 0, time.UTC))

	tests := []struct {
		pattern string
		want    string
	}{
		{"yyyy-mm-dd hh:mm:ss", "2024-02-29 13:05:09"},
		{"d mmm yy", "29 Feb 24"},
		{"dddd, mmmm d", "Thursday, February 29"},
		{"ddd m/d", "Thu 2/29"},
		{"h:mm AM/PM", "1:05 PM"},
		{"h:mm a/p", "1:05 p"},
		{"mmmmm", "F"},
		{`"on "dd\.mm`, "on 29.02"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := FormatValue(value.Number(leap), tt.pattern)
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue_FractionalSeconds(t *testing.T) {
	got, err := FormatValue(value.Number(309.25/86400), "mm:ss.00")
	require.Nil(t, err)
	assert.Equal(t, "05:09.25", got)

	// without a fraction the time rounds to the nearest second
	got, err = FormatValue(value.Number(309.6/86400), "mm:ss")
	require.Nil(t, err)
	assert.Equal(t, "05:10", got)
}

func TestFormatValue_NegativeDate(t *testing.T) {
	_, err := FormatValue(value.Number(-1), "yyyy")
	require.NotNil(t, err)
	assert.Equal(t, value.CodeValue, err.Code)
}

func TestTextFunction(t *testing.T) {
	assert.Equal(t, value.Text("1,234.57"), call(t, "TEXT", lit(1234.567), lit("#,##0.00")))
	assert.Equal(t, value.Text("2024-01-01"), call(t, "TEXT", call2(t, "TODAY"), lit("yyyy-mm-dd")))
	requireCode(t, value.CodeNA, call(t, "TEXT", errArg(value.CodeNA), lit("0")))
	requireCode(t, value.CodeValue, call(t, "TEXT", lit(1)))
}

// call2 wraps the result of a call as a thunk for nesting.
func call2(t *testing.T, name string, args ...Thunk) Thunk {
	v := call(t, name, args...)
	return func(*Context) value.Value { return v }
}
