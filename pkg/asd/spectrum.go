package asd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Spectrum is one acquired measurement: the detector configuration it was
// taken with and the radiance value per wavelength channel.
type Spectrum struct {
	// Time is the UTC acquisition instant
	Time time.Time

	// IntegrationTime is the detector integration time code
	IntegrationTime IntegrationTime

	// Drift is the dark-current drift reported by the instrument
	Drift int

	// SWIR detector gains and offsets
	SWIR1Gain   int
	SWIR1Offset int
	SWIR2Gain   int
	SWIR2Offset int

	// StartWavelength is the wavelength of the first channel in nm
	StartWavelength float64

	// WavelengthStep is the channel spacing in nm
	WavelengthStep float64

	// Values holds one radiance value per channel
	Values []float64
}

// Wavelength returns the wavelength of channel i in nm.
func (s *Spectrum) Wavelength(i int) float64 {
	return s.StartWavelength + float64(i)*s.WavelengthStep
}

// FileName returns the spectrum file name, a UTC timestamp to the second.
func (s *Spectrum) FileName() string {
	return s.Time.UTC().Format("20060102150405") + ".txt"
}

// Serialize formats the spectrum as tab-separated text: header lines for the
// detector configuration, a blank line, then one wavelength/value pair per
// line. Decimal values use comma separators, matching the instrument
// software's locale.
func (s *Spectrum) Serialize() string {
	var b strings.Builder

	fmt.Fprintf(&b, "integration_time\t%d\n", int(s.IntegrationTime))
	fmt.Fprintf(&b, "drift\t%d\n", s.Drift)
	fmt.Fprintf(&b, "swir1\t%d\t%d\n", s.SWIR1Gain, s.SWIR1Offset)
	fmt.Fprintf(&b, "swir2\t%d\t%d\n", s.SWIR2Gain, s.SWIR2Offset)
	b.WriteString("\n")

	for i, value := range s.Values {
		fmt.Fprintf(&b, "%s\t%s\n", decimalComma(s.Wavelength(i)), decimalComma(value))
	}

	return b.String()
}

// Save writes the serialized spectrum into folder, creating it if needed,
// and returns the full path written.
func (s *Spectrum) Save(folder string) (string, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("failed to create spectrum folder: %w", err)
	}

	path := filepath.Join(folder, s.FileName())
	if err := os.WriteFile(path, []byte(s.Serialize()), 0644); err != nil {
		return "", fmt.Errorf("failed to write spectrum file: %w", err)
	}
	return path, nil
}

// decimalComma formats a float with a comma as the decimal separator.
func decimalComma(value float64) string {
	return strings.Replace(strconv.FormatFloat(value, 'f', -1, 64), ".", ",", 1)
}
