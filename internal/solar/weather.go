package solar

import "strings"

// Symbol is a MET-style weather symbol code (e.g. "cloudy", "snow_day",
// "heavysnowandthunder_night"), carrying day/night/thunder/snow detection as
// suffix and substring checks — the forecast APIs in this space encode
// conditions this way rather than as a structured enum.
type Symbol string

// IsDay reports whether the symbol denotes daytime conditions.
func (s Symbol) IsDay() bool {
	return strings.HasSuffix(string(s), "_day")
}

// IsNight reports whether the symbol denotes nighttime conditions.
func (s Symbol) IsNight() bool {
	return strings.HasSuffix(string(s), "_night")
}

// IsPolarTwilight reports whether the symbol denotes polar twilight.
func (s Symbol) IsPolarTwilight() bool {
	return strings.HasSuffix(string(s), "_polartwilight")
}

// HasThunder reports whether the symbol mentions thunder.
func (s Symbol) HasThunder() bool {
	return strings.Contains(string(s), "thunder")
}

// HasSnow reports whether the symbol mentions snow — panels under snow cover
// produce zero power regardless of sun angle or cloud cover.
func (s Symbol) HasSnow() bool {
	return strings.Contains(string(s), "snow")
}
