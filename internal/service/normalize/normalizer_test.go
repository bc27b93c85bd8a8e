package normalize

import (
	"testing"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	"PricePull/pkg/metrics"

	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestParseDateShapes(t *testing.T) {
	tests := []struct {
		raw, year string
		want      string
		shape     DateShape
		ok        bool
	}{
		{"05/02", "2024", "2024-05-02", ShapeMonthDay, true},
		{"5/2", "2023", "2023-05-02", ShapeMonthDay, true},
		{"2024/05/02", "", "2024-05-02", ShapeMonthDay, true},
		{"05/02", "", "", ShapeMonthDay, false},
		{"05/02", "24", "", ShapeMonthDay, false},
		{"02/30", "2024", "", ShapeMonthDay, false},
		{"20240502", "", "2024-05-02", ShapeCompact, true},
		{"20240230", "", "", ShapeCompact, false},
		{"2024-05-02", "", "2024-05-02", ShapeISOPrefix, true},
		{"2024-05-02 00:00:00", "", "2024-05-02", ShapeISOPrefix, true},
		{"2024-13-02", "", "", ShapeISOPrefix, false},
		{"May 2", "2024", "", ShapeUnknown, false},
		{"", "2024", "", ShapeUnknown, false},
	}
	for _, tt := range tests {
		d, shape, ok := ParseDate(tt.raw, tt.year)
		require.Equal(t, tt.ok, ok, tt.raw)
		require.Equal(t, tt.shape, shape, tt.raw)
		if ok {
			require.Equal(t, tt.want, d.Format("2006-01-02"), tt.raw)
		}
	}
}

func TestCompactDateIsPositional(t *testing.T) {
	for _, d := range []string{"20000101", "20991231", "20240229", "21000615"} {
		got, ok := NormalizeDate(d, "")
		require.True(t, ok, d)
		require.Equal(t, d[0:4]+"-"+d[4:6]+"-"+d[6:8], got)
	}
}

func TestMonthDayUsesYearField(t *testing.T) {
	for _, y := range []string{"2001", "2015", "2099"} {
		d, _, ok := ParseDate("03/15", y)
		require.True(t, ok)
		require.Equal(t, y, d.Format("2006"))
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"12,340", 12340, true},
		{" 9800.9 ", 9800, true},
		{"1 200", 1200, true},
		{"-", 0, false},
		{"", 0, false},
		{"0", 0, false},
		{"0.5", 0, false},
		{"-100", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		require.Equal(t, tt.ok, ok, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestExtractPriceFieldOrder(t *testing.T) {
	p, ok := ExtractPrice(map[string]string{"price": "-", "dpr1": "11,900", "dpr0": "12,000"})
	require.True(t, ok)
	require.Equal(t, 11900, p)

	_, ok = ExtractPrice(map[string]string{"price": "-", "itemname": "x"})
	require.False(t, ok)
}

func TestNormalize(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	n := NewNormalizer(cat, metrics.Noop{})
	asOf := date("2024-05-06")

	raws := []models.RawObservation{
		{Fields: map[string]string{"price": "12,340"}, RawDate: "05/02", Year: "2024", Region: "서울", Market: "이마트"},
		{Fields: map[string]string{"price": "11,000"}, RawDate: "20240503", Region: "평균"},
		{Fields: map[string]string{"price": "10,500"}, RawDate: "2024-05-03", Region: "부산"},
		{Fields: map[string]string{"price": "9,000"}, RawDate: "05/03", Year: "2024", Region: "평년"},
		{Fields: map[string]string{"price": "-"}, RawDate: "05/04", Year: "2024", Region: "서울"},
		{Fields: map[string]string{"price": "13,000"}, RawDate: "05/07", Year: "2024", Region: "서울"},
		{Fields: map[string]string{"price": "13,000"}, RawDate: "19990101", Region: "서울"},
		{Fields: map[string]string{"price": "13,000"}, RawDate: "yesterday", Region: "서울"},
	}

	got := n.Normalize(raws, "서울", "Beef_Ribeye", asOf)
	require.Len(t, got, 3)

	require.Equal(t, date("2024-05-02"), got[0].Date)
	require.Equal(t, 12340, got[0].Price)
	require.Equal(t, models.PriorityExact, got[0].Priority)
	require.Equal(t, "이마트", got[0].Market)
	require.Equal(t, "Beef_Ribeye", got[0].ItemKey)

	require.Equal(t, models.PriorityAverage, got[1].Priority)
	require.Equal(t, models.PriorityOther, got[2].Priority)

	for _, o := range got {
		require.Positive(t, o.Price)
		require.False(t, o.Date.After(asOf))
	}
}

func TestNormalizeNationalLabelIsAverage(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	n := NewNormalizer(cat, metrics.Noop{})

	got := n.Normalize([]models.RawObservation{
		{Fields: map[string]string{"dpr1": "5,000"}, RawDate: "2024-05-01", Region: "전국"},
		{Fields: map[string]string{"dpr1": "5,100"}, RawDate: "2024-05-01", Region: ""},
	}, "전국", "Pork_Belly", date("2024-05-06"))
	require.Len(t, got, 2)
	for _, o := range got {
		require.Equal(t, models.PriorityAverage, o.Priority)
	}
}
