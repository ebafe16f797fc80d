package fare

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// rate is the pricing row for one vehicle class.
type rate struct {
	Base   float64
	PerKm  float64
	PerMin float64
}

// Rates per vehicle class. Unknown classes price as "car".
var rates = map[string]rate{
	"motorBike":      {Base: 20, PerKm: 5, PerMin: 1},
	"scooter":        {Base: 20, PerKm: 5, PerMin: 1},
	"car":            {Base: 30, PerKm: 8, PerMin: 1.5},
	"bakkie":         {Base: 50, PerKm: 10, PerMin: 2},
	"1 ton truck":    {Base: 80, PerKm: 12, PerMin: 2.5},
	"1.5 ton truck":  {Base: 100, PerKm: 14, PerMin: 2.5},
	"2 ton truck":    {Base: 120, PerKm: 16, PerMin: 3},
	"4 ton truck":    {Base: 180, PerKm: 20, PerMin: 3.5},
	"8 ton truck":    {Base: 260, PerKm: 26, PerMin: 4},
}

const surgeMultiplier = 1.5

// Calculate prices a trip from distance, estimated duration and the surge
// flag. The result is rounded to cents.
func Calculate(vehicleType string, distanceKm, minutes float64, surge bool) float64 {
	r, ok := rates[vehicleType]
	if !ok {
		r = rates["car"]
	}
	total := r.Base + r.PerKm*distanceKm + r.PerMin*minutes
	if surge {
		total *= surgeMultiplier
	}
	return math.Round(total*100) / 100
}

var (
	reHours   = regexp.MustCompile(`(\d+)\s*hour`)
	reMinutes = regexp.MustCompile(`(\d+)\s*min`)
	reSeconds = regexp.MustCompile(`(\d+)\s*sec`)
)

// ParseDurationMinutes converts a human duration label into minutes. Any
// subset of hour/minute/second components may be present; an unparseable
// string yields 0 rather than an error, so a provider format change only
// drops the time-based surcharge instead of failing trip creation.
func ParseDurationMinutes(s string) float64 {
	total := 0.0
	if m := reHours.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			total += v * 60
		}
	}
	if m := reMinutes.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			total += v
		}
	}
	if m := reSeconds.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			total += v / 60
		}
	}
	return total
}

// EasterDate computes Gregorian Easter Sunday for the given year using the
// anonymous Gregorian algorithm.
func EasterDate(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// IsPeakHourOrFestive reports whether t triggers surge pricing: New Year's
// Day, Christmas Day, Easter Sunday, or the overnight peak window where the
// local hour is >= 18 or <= 9.
func IsPeakHourOrFestive(t time.Time) bool {
	if t.Month() == time.January && t.Day() == 1 {
		return true
	}
	if t.Month() == time.December && t.Day() == 25 {
		return true
	}
	easter := EasterDate(t.Year())
	if t.Month() == easter.Month() && t.Day() == easter.Day() {
		return true
	}
	return t.Hour() >= 18 || t.Hour() <= 9
}
