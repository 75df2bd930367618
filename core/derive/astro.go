// File: core/derive/astro.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pointing helpers: sexagesimal parsing, sidereal time, horizon coordinates.

package derive

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/momentics/guppi-status/api"
)

// Site is an observatory location in degrees (east longitude positive).
type Site struct {
	Name   string
	LonDeg float64
	LatDeg float64
}

// GBT is the Green Bank Telescope.
var GBT = Site{Name: "GBT", LonDeg: -79.839857, LatDeg: 38.433129}

// ParseSexagesimal parses "[+-]a:b:c" (or space separated) into a*1 + b/60 + c/3600.
func ParseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty angle: %w", api.ErrInvalidArgument)
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign, s = -1, s[1:]
	case '+':
		s = s[1:]
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' })
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("angle %q: %w", s, api.ErrInvalidArgument)
	}
	total, scale := 0.0, 1.0
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return 0, fmt.Errorf("angle %q field %d: %w", s, i, api.ErrInvalidArgument)
		}
		total += v / scale
		scale *= 60
	}
	return sign * total, nil
}

// FormatSexagesimal renders v as [+-]dd:mm:ss.s (sign only when signed).
func FormatSexagesimal(v float64, signed bool) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	} else if signed {
		sign = "+"
	}
	tenths := int64(math.Round(v * 36000))
	h := tenths / 36000
	m := (tenths / 600) % 60
	s := float64(tenths%600) / 10
	return fmt.Sprintf("%s%02d:%02d:%04.1f", sign, h, m, s)
}

// GreenwichSiderealHours returns mean sidereal time at Greenwich.
func GreenwichSiderealHours(mjd float64) float64 {
	d := mjd + 2400000.5 - 2451545.0
	return wrap(18.697374558+24.06570982441908*d, 24)
}

// LocalSiderealHours returns local mean sidereal time at site.
func LocalSiderealHours(mjd float64, site Site) float64 {
	return wrap(GreenwichSiderealHours(mjd)+site.LonDeg/15, 24)
}

// AzZa converts J2000 equatorial coordinates to azimuth (from north,
// through east) and zenith angle at site, ignoring precession and
// refraction.
func AzZa(raDeg, decDeg, mjd float64, site Site) (az, za float64) {
	ha := rad(LocalSiderealHours(mjd, site)*15 - raDeg)
	dec, lat := rad(decDeg), rad(site.LatDeg)

	sinAlt := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(ha)
	alt := math.Asin(math.Max(-1, math.Min(1, sinAlt)))
	y := -math.Sin(ha) * math.Cos(dec)
	x := math.Sin(dec)*math.Cos(lat) - math.Cos(dec)*math.Cos(ha)*math.Sin(lat)
	az = wrap(deg(math.Atan2(y, x)), 360)
	return az, 90 - deg(alt)
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

func wrap(v, period float64) float64 {
	v = math.Mod(v, period)
	if v < 0 {
		v += period
	}
	return v
}
