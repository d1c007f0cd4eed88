package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLat float64
		wantLon float64
	}{
		{"Mexico City", `19°26'10"N 99°04'19"W`, 19.436111, -99.071944},
		{"Cancun", `21°02'12"N 86°52'37"W`, 21.036667, -86.876944},
		{"southern and eastern", `33°56'46"S 151°10'38"E`, -33.946111, 151.177222},
		{"ordinal sign and spaces", `20º 31' 18" N 103º 18' 40" W`, 20.521667, -103.311111},
		{"fractional seconds", `19°26'10.5"N 99°04'19.5"W`, 19.436250, -99.072083},
		{"lowercase hemisphere", `19°26'10"n 99°04'19"w`, 19.436111, -99.071944},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePosition(tt.input)
			assert.InDelta(t, tt.wantLat, p.Latitude, 1e-5)
			assert.InDelta(t, tt.wantLon, p.Longitude, 1e-5)
			assert.False(t, p.IsZero())
		})
	}
}

func TestParsePosition_Malformed(t *testing.T) {
	inputs := []string{
		"",
		`19°26'10"N`,
		`19°26'N 99°04'19"W`,
		`19°26'10" 99°04'19"W`,
		`99°04'19"W 19°26'10"N`,
		`19°26'10"N 99°04'19"W 12°00'00"E`,
		"19.4361,-99.0719",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			p := ParsePosition(in)
			assert.True(t, p.IsZero(), "expected neutral position for %q, got %+v", in, p)
		})
	}
}

func TestFormatPositionRoundTrip(t *testing.T) {
	in := `19°26'10"N 099°04'19"W`
	p := ParsePosition(in)
	assert.Equal(t, `19°26'10"N 99°04'19"W`, FormatPosition(p))

	p2 := ParsePosition(FormatPosition(Position{Latitude: -0.5, Longitude: 179.99999}))
	assert.InDelta(t, -0.5, p2.Latitude, 1e-9)
	assert.InDelta(t, 180.0, p2.Longitude, 1e-3)
}

func TestBetween_KnownRoute(t *testing.T) {
	mmmx := ParsePosition(`19°26'10"N 99°04'19"W`)
	mmun := ParsePosition(`21°02'12"N 86°52'37"W`)

	d := Between(mmmx, mmun)
	assert.InDelta(t, 1284.4, d.Km, 0.5)
	assert.InDelta(t, d.Km*KmToNM, d.NM, 1e-9)
}

func TestBetween_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randPos := func() Position {
		return Position{
			Latitude:  rng.Float64()*180 - 90,
			Longitude: rng.Float64()*360 - 180,
		}
	}

	for i := 0; i < 500; i++ {
		a, b, c := randPos(), randPos(), randPos()

		ab := Between(a, b)
		ba := Between(b, a)
		assert.Equal(t, ab, ba, "distance must be symmetric")

		assert.Zero(t, Between(a, a).Km)
		assert.Greater(t, ab.Km, 0.0)

		ac := Between(a, c).Km
		cb := Between(c, b).Km
		assert.LessOrEqual(t, ab.Km, ac+cb+1e-6, "triangle inequality")
	}
}

func TestBetween_Antipodal(t *testing.T) {
	d := Between(Position{Latitude: 0, Longitude: 0}, Position{Latitude: 0, Longitude: 180})
	assert.InDelta(t, 20015.086, d.Km, 0.01)
}
