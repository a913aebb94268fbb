package protocol

// LevelBand maps every raw reading in [Min, Max] to Fraction.
type LevelBand struct {
	Min, Max int
	Fraction float64
}

// LevelCalibration is the device-specific correction for the cap's level
// sensor. Bands are checked in order; readings outside every band fall back
// to raw/100 clamped to [0,1].
var LevelCalibration = []LevelBand{
	{Min: 75, Max: 85, Fraction: 1.0}, // reported as full
	{Min: 15, Max: 25, Fraction: 0.2}, // low, not critical
}

// CalibrateLevel converts a raw level reading to a fill fraction.
func CalibrateLevel(raw int) float64 {
	for _, b := range LevelCalibration {
		if raw >= b.Min && raw <= b.Max {
			return b.Fraction
		}
	}
	f := float64(raw) / 100.0
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
