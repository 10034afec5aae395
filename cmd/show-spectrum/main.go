package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/goa-uva/solys2scope/pkg/asd"
)

// main inspects saved spectrum files: the detector configuration from the
// header and summary statistics over the channels, or every channel with
// -values.
func main() {
	values := flag.Bool("values", false, "Print every wavelength/value pair instead of a summary")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("Usage: show-spectrum [-values] <spectrum file> ...")
	}

	for i, path := range flag.Args() {
		if i > 0 {
			fmt.Println()
		}
		spectrum, err := asd.LoadSpectrum(path)
		if err != nil {
			log.Fatalf("Failed to load spectrum: %v", err)
		}
		show(path, spectrum, *values)
	}
}

func show(path string, s *asd.Spectrum, values bool) {
	fmt.Println(path)
	if !s.Time.IsZero() {
		fmt.Printf("  acquired          %s\n", s.Time.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("  integration time  %d (code)\n", int(s.IntegrationTime))
	fmt.Printf("  drift             %d\n", s.Drift)
	fmt.Printf("  swir1 gain/offset %d/%d\n", s.SWIR1Gain, s.SWIR1Offset)
	fmt.Printf("  swir2 gain/offset %d/%d\n", s.SWIR2Gain, s.SWIR2Offset)
	fmt.Printf("  channels          %d, %.6g nm to %.6g nm, step %.6g nm\n",
		len(s.Values), s.StartWavelength, s.Wavelength(len(s.Values)-1), s.WavelengthStep)

	if values {
		fmt.Println()
		fmt.Printf("%12s  %14s\n", "wavelength", "value")
		for i, value := range s.Values {
			fmt.Printf("%12.6g  %14.6g\n", s.Wavelength(i), value)
		}
		return
	}

	min, max, peak := s.Values[0], s.Values[0], 0
	sum := 0.0
	for i, value := range s.Values {
		if value < min {
			min = value
		}
		if value > max {
			max = value
			peak = i
		}
		sum += value
	}
	fmt.Printf("  value range       %.6g to %.6g, mean %.6g\n", min, max, sum/float64(len(s.Values)))
	fmt.Printf("  peak              %.6g at %.6g nm\n", max, s.Wavelength(peak))
}
