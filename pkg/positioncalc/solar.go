package positioncalc

import (
	"math"
	"time"
)

// sunPosition calculates the sun's apparent position for a given observer and time.
// Uses simplified algorithms accurate to about 1 arcminute.
// Based on NOAA solar calculator algorithms.
func sunPosition(observer Observer, t time.Time) Position {
	// Convert to UTC
	utc := t.UTC()

	// Julian date calculation
	jd := julianDate(utc)

	// Julian century from J2000.0
	jc := (jd - 2451545.0) / 36525.0

	// Sun's geometric mean longitude (degrees)
	L0 := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360.0)

	// Sun's mean anomaly (degrees)
	M := 357.52911 + jc*(35999.05029-0.0001537*jc)
	Mrad := deg2rad(M)

	// Sun's equation of center
	C := math.Sin(Mrad)*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(2*Mrad)*(0.019993-0.000101*jc) +
		math.Sin(3*Mrad)*0.000289

	// Sun's true longitude (degrees)
	sunTrueLong := L0 + C

	// Sun's apparent longitude (degrees) - corrected for aberration and nutation
	omega := 125.04 - 1934.136*jc
	lambda := sunTrueLong - 0.00569 - 0.00478*math.Sin(deg2rad(omega))

	// Obliquity of ecliptic (degrees)
	epsilon0 := 23.0 + (26.0+(21.448-jc*(46.815+jc*(0.00059-jc*0.001813))))/60.0/60.0
	epsilon := epsilon0 + 0.00256*math.Cos(deg2rad(omega))

	// Sun's right ascension (degrees)
	lambdaRad := deg2rad(lambda)
	epsilonRad := deg2rad(epsilon)
	ra := rad2deg(math.Atan2(math.Cos(epsilonRad)*math.Sin(lambdaRad), math.Cos(lambdaRad)))
	if ra < 0 {
		ra += 360
	}

	// Sun's declination (degrees)
	dec := rad2deg(math.Asin(math.Sin(epsilonRad) * math.Sin(lambdaRad)))

	altitude, azimuth := equatorialToHorizontal(ra, dec, observer, jd)

	// Atmospheric refraction correction (only if sun is above horizon)
	altitude += refractionCorrection(altitude)

	return Position{
		Azimuth: azimuth,
		Zenith:  90.0 - altitude,
		Time:    t,
	}
}
