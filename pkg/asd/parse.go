package asd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ParseSpectrum reads a spectrum back from its serialized form: the header
// lines, a blank separator, then the wavelength/value pairs. It is the
// inverse of Serialize, so decimal values use comma separators.
func ParseSpectrum(r io.Reader) (*Spectrum, error) {
	spectrum := &Spectrum{}
	scanner := bufio.NewScanner(r)

	inHeader := true
	for scanner.Scan() {
		line := scanner.Text()

		if inHeader {
			if line == "" {
				inHeader = false
				continue
			}
			if err := parseHeaderLine(spectrum, line); err != nil {
				return nil, err
			}
			continue
		}

		if line == "" {
			continue
		}
		wavelength, value, err := parseChannelLine(line)
		if err != nil {
			return nil, err
		}
		if len(spectrum.Values) == 0 {
			spectrum.StartWavelength = wavelength
		} else if len(spectrum.Values) == 1 {
			spectrum.WavelengthStep = wavelength - spectrum.StartWavelength
		}
		spectrum.Values = append(spectrum.Values, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if inHeader {
		return nil, fmt.Errorf("spectrum header never ended, missing blank separator line")
	}
	if len(spectrum.Values) == 0 {
		return nil, fmt.Errorf("spectrum has no channels")
	}
	return spectrum, nil
}

// LoadSpectrum parses the spectrum file at path. The acquisition time is
// recovered from the timestamp file name where possible.
func LoadSpectrum(path string) (*Spectrum, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	spectrum, err := ParseSpectrum(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	stamp := strings.TrimSuffix(filepath.Base(path), ".txt")
	if acquired, err := time.ParseInLocation("20060102150405", stamp, time.UTC); err == nil {
		spectrum.Time = acquired
	}
	return spectrum, nil
}

func parseHeaderLine(spectrum *Spectrum, line string) error {
	fields := strings.Split(line, "\t")
	key := fields[0]
	values := fields[1:]

	switch key {
	case "integration_time":
		code, err := headerInts(key, values, 1)
		if err != nil {
			return err
		}
		spectrum.IntegrationTime = IntegrationTime(code[0])
	case "drift":
		drift, err := headerInts(key, values, 1)
		if err != nil {
			return err
		}
		spectrum.Drift = drift[0]
	case "swir1":
		pair, err := headerInts(key, values, 2)
		if err != nil {
			return err
		}
		spectrum.SWIR1Gain, spectrum.SWIR1Offset = pair[0], pair[1]
	case "swir2":
		pair, err := headerInts(key, values, 2)
		if err != nil {
			return err
		}
		spectrum.SWIR2Gain, spectrum.SWIR2Offset = pair[0], pair[1]
	default:
		return fmt.Errorf("unknown spectrum header %q", key)
	}
	return nil
}

func headerInts(key string, values []string, want int) ([]int, error) {
	if len(values) != want {
		return nil, fmt.Errorf("spectrum header %q has %d values, want %d", key, len(values), want)
	}
	parsed := make([]int, len(values))
	for i, value := range values {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("spectrum header %q has non-numeric value %q", key, value)
		}
		parsed[i] = n
	}
	return parsed, nil
}

func parseChannelLine(line string) (wavelength, value float64, err error) {
	left, right, found := strings.Cut(line, "\t")
	if !found {
		return 0, 0, fmt.Errorf("malformed channel line %q", line)
	}
	wavelength, err = parseDecimalComma(left)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed channel wavelength %q", left)
	}
	value, err = parseDecimalComma(right)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed channel value %q", right)
	}
	return wavelength, value, nil
}

// parseDecimalComma parses a float written with a comma decimal separator.
func parseDecimalComma(text string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
}
