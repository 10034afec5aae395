package autotrack

import "math"

// Offset is one scan-plan entry: the angular offset from the body's
// computed position to point at, in degrees.
type Offset struct {
	Azimuth float64
	Zenith  float64
}

// AxisRange describes one axis of a calibration sweep.
type AxisRange struct {
	// Min and Max bound the offset range in degrees
	Min float64
	Max float64

	// Step is the offset increment in degrees
	Step float64
}

// Points expands the range into its offset values. Both boundaries are
// included: the count is derived by rounding (Max-Min)/Step, so float
// accumulation can neither drop the final boundary point nor add a spurious
// one past Max. A range of [-1.5, 1.5] with step 0.3 yields 11 points.
func (r AxisRange) Points() []float64 {
	if r.Step <= 0 || r.Max < r.Min {
		return []float64{r.Min}
	}

	count := int(math.Round((r.Max-r.Min)/r.Step)) + 1
	points := make([]float64, count)
	for i := 0; i < count; i++ {
		points[i] = r.Min + float64(i)*r.Step
	}
	// Pin the last point to the boundary so accumulated error never
	// overshoots Max.
	points[count-1] = r.Max
	return points
}

// CrossPlan is the offset sequence of a cross scan: a 1-D azimuth sweep at
// zero zenith offset followed by a 1-D zenith sweep at zero azimuth offset.
func CrossPlan(azimuth, zenith AxisRange) []Offset {
	azPoints := azimuth.Points()
	zePoints := zenith.Points()

	plan := make([]Offset, 0, len(azPoints)+len(zePoints))
	for _, az := range azPoints {
		plan = append(plan, Offset{Azimuth: az})
	}
	for _, ze := range zePoints {
		plan = append(plan, Offset{Zenith: ze})
	}
	return plan
}

// MeshPlan is the offset sequence of a mesh scan: the full 2-D Cartesian
// product of the azimuth and zenith ranges, zenith-major so the slower
// zenith axis moves least.
func MeshPlan(azimuth, zenith AxisRange) []Offset {
	azPoints := azimuth.Points()
	zePoints := zenith.Points()

	plan := make([]Offset, 0, len(azPoints)*len(zePoints))
	for _, ze := range zePoints {
		for _, az := range azPoints {
			plan = append(plan, Offset{Azimuth: az, Zenith: ze})
		}
	}
	return plan
}
