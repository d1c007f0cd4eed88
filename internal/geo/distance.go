package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// KmToNM converts kilometres to nautical miles.
	KmToNM = 0.539957
)

// Distance is a great-circle distance.
type Distance struct {
	Km float64 `json:"km"`
	NM float64 `json:"nm"`
}

// Between returns the haversine distance between a and b.
func Between(a, b Position) Distance {
	km := haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	return Distance{Km: km, NM: km * KmToNM}
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a marginally above 1 for antipodal points.
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
