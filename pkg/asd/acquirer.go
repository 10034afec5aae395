package asd

import "time"

// Acquirer captures one spectrum per call and writes it to a folder. It is
// the instrument callback the tracking and scan operations invoke at each
// measurement point.
type Acquirer struct {
	client  *Client
	folder  string
	timeout time.Duration

	// Saved, when set, is invoked with each spectrum and the path it was
	// written to. Used for archiving.
	Saved func(spectrum *Spectrum, path string)
}

// NewAcquirer creates an acquirer writing spectra to folder.
func NewAcquirer(client *Client, folder string, timeout time.Duration) *Acquirer {
	return &Acquirer{client: client, folder: folder, timeout: timeout}
}

// Capture acquires one spectrum and saves it. Returns the spectrum and the
// path of the written file.
func (a *Acquirer) Capture() (*Spectrum, string, error) {
	spectrum, err := a.client.Acquire(a.timeout)
	if err != nil {
		return nil, "", err
	}

	path, err := spectrum.Save(a.folder)
	if err != nil {
		return nil, "", err
	}

	if a.Saved != nil {
		a.Saved(spectrum, path)
	}
	return spectrum, path, nil
}

// Measure adapts Capture to the func() error shape the operation sessions
// take as their instrument callback.
func (a *Acquirer) Measure() error {
	_, _, err := a.Capture()
	return err
}
