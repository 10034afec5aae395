// Package positioncalc computes the apparent position of the sun and moon
// for an observer site, expressed in the SOLYS2 pointing convention
// (azimuth from north, zenith angle from vertical).
package positioncalc

import (
	"fmt"
	"math"
	"time"
)

// Body identifies the celestial body being tracked.
type Body int

const (
	Sun Body = iota
	Moon
)

// String returns the body name used in log files and run records.
func (b Body) String() string {
	switch b {
	case Sun:
		return "SUN"
	case Moon:
		return "MOON"
	default:
		return "UNKNOWN"
	}
}

// Observer is the instrument's geographic location.
type Observer struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees, east positive (-180 to +180)
	Longitude float64

	// Height in meters above sea level
	Height float64
}

// Position is a pointing direction in the SOLYS2 convention.
type Position struct {
	// Azimuth in degrees from north, eastward (0-360)
	Azimuth float64

	// Zenith angle in degrees from vertical (0 = overhead, 90 = horizon)
	Zenith float64

	// Time is the instant the position was computed for
	Time time.Time
}

// Ephemeris computes body positions. The built-in implementation uses
// low-precision algorithms; a SPICE-kernel implementation can be substituted
// when higher accuracy is required.
type Ephemeris interface {
	Position(body Body, observer Observer, t time.Time) (Position, error)
}

// Builtin is the built-in low-precision ephemeris.
// Accuracy is about 1 arcminute for the sun and a few arcminutes for the
// moon, sufficient for pointing a mount that is then fine-adjusted.
type Builtin struct{}

// Position computes the apparent position of the given body.
func (Builtin) Position(body Body, observer Observer, t time.Time) (Position, error) {
	switch body {
	case Sun:
		return sunPosition(observer, t), nil
	case Moon:
		return moonPosition(observer, t), nil
	default:
		return Position{}, fmt.Errorf("unknown body %d", int(body))
	}
}

// julianDate calculates the Julian Date from a time.Time
func julianDate(t time.Time) float64 {
	year := t.Year()
	month := int(t.Month())
	day := t.Day()
	hour := t.Hour()
	minute := t.Minute()
	second := t.Second()

	// Adjust for January and February
	if month <= 2 {
		year--
		month += 12
	}

	// Julian day number
	a := year / 100
	b := 2 - a + a/4

	jd := float64(int(365.25*float64(year+4716))) +
		float64(int(30.6001*float64(month+1))) +
		float64(day+b) - 1524.5

	// Add fractional day
	dayFraction := (float64(hour) + float64(minute)/60.0 + float64(second)/3600.0) / 24.0
	jd += dayFraction

	return jd
}

// greenwichSiderealTime returns the Greenwich mean sidereal time in degrees.
func greenwichSiderealTime(jd float64) float64 {
	jc := (jd - 2451545.0) / 36525.0
	gmst := math.Mod(280.46061837+360.98564736629*(jd-2451545.0)+
		0.000387933*jc*jc-jc*jc*jc/38710000.0, 360.0)
	if gmst < 0 {
		gmst += 360
	}
	return gmst
}

// equatorialToHorizontal converts right ascension and declination (degrees)
// to altitude and azimuth for the observer at the given Julian date.
func equatorialToHorizontal(ra, dec float64, observer Observer, jd float64) (altitude, azimuth float64) {
	// Local sidereal time (degrees)
	lst := math.Mod(greenwichSiderealTime(jd)+observer.Longitude, 360.0)

	// Hour angle (degrees)
	ha := lst - ra
	if ha < 0 {
		ha += 360
	}
	if ha > 180 {
		ha -= 360
	}

	latRad := deg2rad(observer.Latitude)
	decRad := deg2rad(dec)
	haRad := deg2rad(ha)

	// Altitude (elevation)
	sinAlt := math.Sin(latRad)*math.Sin(decRad) + math.Cos(latRad)*math.Cos(decRad)*math.Cos(haRad)
	altitude = rad2deg(math.Asin(sinAlt))

	// Azimuth (from north, eastward)
	cosAz := (math.Sin(decRad) - math.Sin(latRad)*math.Sin(deg2rad(altitude))) / (math.Cos(latRad) * math.Cos(deg2rad(altitude)))
	// Clamp to prevent domain errors
	if cosAz > 1.0 {
		cosAz = 1.0
	}
	if cosAz < -1.0 {
		cosAz = -1.0
	}

	azimuth = rad2deg(math.Acos(cosAz))

	// Adjust azimuth based on hour angle
	if math.Sin(haRad) > 0 {
		azimuth = 360.0 - azimuth
	}
	if azimuth >= 360.0 {
		azimuth -= 360.0
	}

	return altitude, azimuth
}

// refractionCorrection returns the atmospheric refraction in degrees for the
// given true altitude. Valid below 85 degrees.
func refractionCorrection(altitude float64) float64 {
	if altitude >= 85.0 || altitude <= -0.833 {
		return 0
	}
	tanAlt := math.Tan(deg2rad(altitude))
	refraction := 0.0
	if altitude > 5.0 {
		refraction = 58.1/tanAlt - 0.07/(tanAlt*tanAlt*tanAlt) + 0.000086/(tanAlt*tanAlt*tanAlt*tanAlt*tanAlt)
	} else if altitude > -0.575 {
		refraction = 1735.0 + altitude*(-518.2+altitude*(103.4+altitude*(-12.79+altitude*0.711)))
	}
	return refraction / 3600.0 // Arcseconds to degrees
}

// deg2rad converts degrees to radians
func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// rad2deg converts radians to degrees
func rad2deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
