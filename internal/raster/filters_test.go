package raster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-tile-server/internal/errs"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestDaysSinceRecordStart(t *testing.T) {
	cases := []struct {
		d    time.Time
		want int
	}{
		{date(2015, 1, 1), 1},
		{date(2015, 12, 31), 365},
		{date(2016, 1, 1), 366},
		{date(2017, 1, 1), 732}, // 2016 is a leap year
		{date(2020, 1, 1), 1827},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DaysSinceRecordStart(tc.d), tc.d.Format("2006-01-02"))
	}
}

func TestScaleIntensity(t *testing.T) {
	// At and above zoom 11 the scale is the identity.
	ident := ScaleIntensity(11)
	assert.InDelta(t, 0, ident(0), 1e-9)
	assert.InDelta(t, 64, ident(64), 1e-9)
	assert.InDelta(t, 255, ident(255), 1e-9)

	// Low zooms boost faint pixels but keep the endpoints fixed.
	low := ScaleIntensity(3)
	assert.InDelta(t, 0, low(0), 1e-9)
	assert.InDelta(t, 255, low(255), 1e-6)
	assert.Greater(t, low(64), 64.0)
}

func annualLossTile(intensity, year uint16) *Bands {
	src := NewBands(3, 2)
	src.Set(0, 0, 0, intensity)
	src.Set(2, 0, 0, year)
	return src
}

func TestAnnualLossFilterMidZoom(t *testing.T) {
	// Zoom 12: identity intensity scale, alpha from the scaled value.
	out, err := ApplyAnnualLossFilter(annualLossTile(120, 20), 12, 2001, 0)
	require.NoError(t, err)

	r, g, b, a := out.At(0, 0)
	assert.Equal(t, uint8(228), r)
	assert.Equal(t, uint8(132), g) // 102 + (72-12) - 120*3/12
	assert.Equal(t, uint8(164), b) // 153 + (33-12) - 120/12
	assert.Equal(t, uint8(120), a)

	// Pixels with no loss year stay transparent.
	_, _, _, a = out.At(1, 1)
	assert.Equal(t, uint8(0), a)
}

func TestAnnualLossFilterHighZoomAlpha(t *testing.T) {
	out, err := ApplyAnnualLossFilter(annualLossTile(77, 5), 13, 2001, 0)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0)
	assert.Equal(t, uint8(77), a)
}

func TestAnnualLossFilterYearMasks(t *testing.T) {
	// Loss year 2020 (band value 20).
	src := annualLossTile(100, 20)

	out, err := ApplyAnnualLossFilter(src, 12, 2021, 0)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0)
	assert.Equal(t, uint8(0), a, "before start year")

	out, err = ApplyAnnualLossFilter(src, 12, 2001, 2019)
	require.NoError(t, err)
	_, _, _, a = out.At(0, 0)
	assert.Equal(t, uint8(0), a, "after end year")

	out, err = ApplyAnnualLossFilter(src, 12, 2019, 2021)
	require.NoError(t, err)
	_, _, _, a = out.At(0, 0)
	assert.Equal(t, uint8(100), a, "inside range")
}

func TestAnnualLossFilterClampsStartYear(t *testing.T) {
	// Years before the record start behave like 2001.
	src := annualLossTile(100, 1)
	out, err := ApplyAnnualLossFilter(src, 12, 1990, 0)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0)
	assert.Equal(t, uint8(100), a)
}

func TestAnnualLossFilterPureOverSource(t *testing.T) {
	// The filter neither mutates its source nor varies between runs:
	// two passes over the same bands produce byte-identical tiles.
	src := annualLossTile(120, 20)

	first, err := ApplyAnnualLossFilter(src, 12, 2001, 0)
	require.NoError(t, err)
	second, err := ApplyAnnualLossFilter(src, 12, 2001, 0)
	require.NoError(t, err)

	assert.Equal(t, first.Pix, second.Pix)
	assert.Equal(t, uint16(120), src.At(0, 0, 0))
}

func TestAnnualLossFilterBandCount(t *testing.T) {
	_, err := ApplyAnnualLossFilter(NewBands(1, 2), 12, 2001, 0)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Upstream))
}

func alertTile(day, confidence, intensity int) *Bands {
	src := NewBands(3, 2)
	src.Set(0, 0, 0, uint16(day/255))
	src.Set(1, 0, 0, uint16(day%255))
	src.Set(2, 0, 0, uint16(confidence*100+intensity))
	return src
}

func TestDeforestationFilterDecodes(t *testing.T) {
	// 2020-01-01 is day 1827, confirmed with intensity 3.
	out, err := ApplyDeforestationFilter(alertTile(1827, 2, 3), time.Time{}, time.Time{}, false)
	require.NoError(t, err)

	r, g, b, a := out.At(0, 0)
	assert.Equal(t, uint8(228), r)
	assert.Equal(t, uint8(102), g)
	assert.Equal(t, uint8(153), b)
	assert.Equal(t, uint8(150), a) // intensity 3 * 50

	// Nodata pixel stays transparent.
	_, _, _, a = out.At(1, 1)
	assert.Equal(t, uint8(0), a)
}

func TestDeforestationFilterAlphaSaturates(t *testing.T) {
	out, err := ApplyDeforestationFilter(alertTile(1827, 2, 30), time.Time{}, time.Time{}, false)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0)
	assert.Equal(t, uint8(255), a)
}

func TestDeforestationFilterDateMasks(t *testing.T) {
	src := alertTile(1827, 2, 3) // 2020-01-01

	out, err := ApplyDeforestationFilter(src, date(2020, 1, 2), time.Time{}, false)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0)
	assert.Equal(t, uint8(0), a, "alert before start date")

	out, err = ApplyDeforestationFilter(src, time.Time{}, date(2019, 12, 31), false)
	require.NoError(t, err)
	_, _, _, a = out.At(0, 0)
	assert.Equal(t, uint8(0), a, "alert after end date")

	out, err = ApplyDeforestationFilter(src, date(2020, 1, 1), date(2020, 1, 1), false)
	require.NoError(t, err)
	_, _, _, a = out.At(0, 0)
	assert.Equal(t, uint8(150), a, "inclusive bounds")
}

func TestDeforestationFilterConfirmedOnly(t *testing.T) {
	unconfirmed := alertTile(1827, 1, 3)

	out, err := ApplyDeforestationFilter(unconfirmed, time.Time{}, time.Time{}, true)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0)
	assert.Equal(t, uint8(0), a)

	out, err = ApplyDeforestationFilter(unconfirmed, time.Time{}, time.Time{}, false)
	require.NoError(t, err)
	_, _, _, a = out.At(0, 0)
	assert.Equal(t, uint8(150), a)
}

func TestDeforestationFilterBandCount(t *testing.T) {
	_, err := ApplyDeforestationFilter(NewBands(2, 2), time.Time{}, time.Time{}, false)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Upstream))
}

func TestBandsToRGBA(t *testing.T) {
	four := NewBands(4, 1)
	four.Set(0, 0, 0, 10)
	four.Set(1, 0, 0, 20)
	four.Set(2, 0, 0, 30)
	four.Set(3, 0, 0, 40)
	r, g, b, a := four.ToRGBA().At(0, 0)
	assert.Equal(t, [4]uint8{10, 20, 30, 40}, [4]uint8{r, g, b, a})

	three := NewBands(3, 1)
	three.Set(0, 0, 0, 300) // clamps to 255
	_, _, _, a = three.ToRGBA().At(0, 0)
	r, _, _, _ = three.ToRGBA().At(0, 0)
	assert.Equal(t, uint8(255), a)
	assert.Equal(t, uint8(255), r)

	gray := NewBands(1, 1)
	gray.Set(0, 0, 0, 42)
	r, g, b, a = gray.ToRGBA().At(0, 0)
	assert.Equal(t, [4]uint8{42, 42, 42, 255}, [4]uint8{r, g, b, a})
}
