package positioncalc

import (
	"math"
	"time"
)

// moonPosition calculates the moon's apparent position for a given observer and time.
// Uses a truncated version of the lunar theory from Meeus, Astronomical
// Algorithms ch. 47, keeping the largest periodic terms. Accuracy is a few
// arcminutes, comparable to the solar calculation.
func moonPosition(observer Observer, t time.Time) Position {
	utc := t.UTC()
	jd := julianDate(utc)

	// Julian century from J2000.0
	jc := (jd - 2451545.0) / 36525.0

	// Moon's mean longitude (degrees)
	Lp := math.Mod(218.3164477+481267.88123421*jc, 360.0)

	// Mean elongation of the moon from the sun (degrees)
	D := deg2rad(math.Mod(297.8501921+445267.1114034*jc, 360.0))

	// Sun's mean anomaly (degrees)
	M := deg2rad(math.Mod(357.5291092+35999.0502909*jc, 360.0))

	// Moon's mean anomaly (degrees)
	Mp := deg2rad(math.Mod(134.9633964+477198.8675055*jc, 360.0))

	// Moon's argument of latitude (degrees)
	F := deg2rad(math.Mod(93.2720950+483202.0175233*jc, 360.0))

	// Ecliptic longitude: largest periodic terms (degrees)
	lon := Lp +
		6.288774*math.Sin(Mp) +
		1.274027*math.Sin(2*D-Mp) +
		0.658314*math.Sin(2*D) +
		0.213618*math.Sin(2*Mp) -
		0.185116*math.Sin(M) -
		0.114332*math.Sin(2*F) +
		0.058793*math.Sin(2*D-2*Mp) +
		0.057066*math.Sin(2*D-M-Mp) +
		0.053322*math.Sin(2*D+Mp) +
		0.045758*math.Sin(2*D-M)

	// Ecliptic latitude: largest periodic terms (degrees)
	lat := 5.128122*math.Sin(F) +
		0.280602*math.Sin(Mp+F) +
		0.277693*math.Sin(Mp-F) +
		0.173237*math.Sin(2*D-F) +
		0.055413*math.Sin(2*D+F-Mp) +
		0.046271*math.Sin(2*D-F-Mp)

	// Obliquity of ecliptic (degrees)
	epsilon := 23.0 + (26.0+(21.448-jc*(46.815+jc*(0.00059-jc*0.001813))))/60.0/60.0

	// Ecliptic to equatorial coordinates
	lonRad := deg2rad(math.Mod(lon, 360.0))
	latRad := deg2rad(lat)
	epsRad := deg2rad(epsilon)

	ra := rad2deg(math.Atan2(
		math.Sin(lonRad)*math.Cos(epsRad)-math.Tan(latRad)*math.Sin(epsRad),
		math.Cos(lonRad)))
	if ra < 0 {
		ra += 360
	}
	dec := rad2deg(math.Asin(
		math.Sin(latRad)*math.Cos(epsRad) +
			math.Cos(latRad)*math.Sin(epsRad)*math.Sin(lonRad)))

	altitude, azimuth := equatorialToHorizontal(ra, dec, observer, jd)

	// Parallax correction. The moon is close enough that the topocentric
	// altitude differs from the geocentric one by up to a degree.
	horizontalParallax := 0.9508
	altitude -= horizontalParallax * math.Cos(deg2rad(altitude))

	// Atmospheric refraction correction (only above horizon)
	altitude += refractionCorrection(altitude)

	return Position{
		Azimuth: azimuth,
		Zenith:  90.0 - altitude,
		Time:    t,
	}
}
