// Package units maps raw SignalK values (SI: m/s, radians, Kelvin, Pascal,
// ratios) to display values. Conversion is pure: no state, no side effects.
package units

import (
	"math"
	"strings"
)

// System selects the display unit set.
const (
	SystemMetric   = "metric"
	SystemImperial = "imperial"
	SystemNautical = "nautical"
)

// Category of measurement, derived from the path.
type Category string

const (
	CategorySpeed       Category = "speed"
	CategoryAngle       Category = "angle"
	CategoryTemperature Category = "temperature"
	CategoryPressure    Category = "pressure"
	CategoryRatio       Category = "ratio"
	CategoryDepth       Category = "depth"
	CategoryVoltage     Category = "voltage"
	CategoryCurrent     Category = "current"
	CategoryUnknown     Category = ""
)

// CategoryOf classifies a dotted path by its trailing segments, the way
// SignalK names its standard paths.
func CategoryOf(path string) Category {
	lower := strings.ToLower(path)
	last := lower
	if i := strings.LastIndex(lower, "."); i >= 0 {
		last = lower[i+1:]
	}
	switch {
	case strings.HasPrefix(last, "speed"):
		return CategorySpeed
	case strings.HasPrefix(last, "heading"), strings.HasPrefix(last, "course"),
		strings.HasPrefix(last, "angle"), strings.HasPrefix(last, "bearing"),
		last == "cog", strings.HasSuffix(last, "direction"):
		return CategoryAngle
	case strings.HasPrefix(last, "temperature"):
		return CategoryTemperature
	case strings.HasPrefix(last, "pressure"):
		return CategoryPressure
	case last == "ratio" || strings.Contains(lower, "relativehumidity") ||
		strings.HasSuffix(last, "level") || strings.Contains(lower, "stateofcharge"):
		return CategoryRatio
	case strings.Contains(lower, "depth"):
		return CategoryDepth
	case strings.HasSuffix(last, "voltage"):
		return CategoryVoltage
	case strings.HasSuffix(last, "current"):
		return CategoryCurrent
	}
	return CategoryUnknown
}

// Convert renders a raw SI value for display under the given unit system.
// ok is false when the path's category is unknown; callers then show the raw
// value as-is.
func Convert(path string, raw float64, system string) (value float64, unit string, ok bool) {
	switch CategoryOf(path) {
	case CategorySpeed:
		return convertSpeed(raw, system)
	case CategoryAngle:
		return radToDeg(raw), "deg", true
	case CategoryTemperature:
		return convertTemperature(raw, system)
	case CategoryPressure:
		return convertPressure(raw, system)
	case CategoryRatio:
		return raw * 100, "%", true
	case CategoryDepth:
		return convertDepth(raw, system)
	case CategoryVoltage:
		return raw, "V", true
	case CategoryCurrent:
		return raw, "A", true
	}
	return raw, "", false
}

const (
	msToKnots = 1.9438444924406048
	msToMph   = 2.2369362920544025
	mToFeet   = 3.280839895013123
	paToBar   = 1e-5
	paToInHg  = 0.0002952998751
	kelvinC   = 273.15
)

func convertSpeed(ms float64, system string) (float64, string, bool) {
	switch system {
	case SystemImperial:
		return ms * msToMph, "mph", true
	case SystemMetric:
		return ms * 3.6, "km/h", true
	default: // nautical
		return ms * msToKnots, "kn", true
	}
}

func convertTemperature(kelvin float64, system string) (float64, string, bool) {
	if system == SystemImperial {
		return (kelvin-kelvinC)*9/5 + 32, "°F", true
	}
	return kelvin - kelvinC, "°C", true
}

func convertPressure(pa float64, system string) (float64, string, bool) {
	if system == SystemImperial {
		return pa * paToInHg, "inHg", true
	}
	return pa * paToBar, "bar", true
}

func convertDepth(m float64, system string) (float64, string, bool) {
	if system == SystemImperial {
		return m * mToFeet, "ft", true
	}
	return m, "m", true
}

// radToDeg normalizes to [0, 360).
func radToDeg(rad float64) float64 {
	deg := math.Mod(rad*180/math.Pi, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
