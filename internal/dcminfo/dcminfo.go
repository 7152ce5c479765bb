// Package dcminfo reads identifying header fields from downloaded DICOM files.
package dcminfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Info holds the header fields worth echoing after a download.
type Info struct {
	Modality       string
	SOPClassUID    string
	SOPInstanceUID string
	PatientID      string
}

// IsDICOM reports whether a file name looks like a DICOM object.
func IsDICOM(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".dcm")
}

// Inspect reads the header of the file element by element, without pixel
// data. A malformed element ends the walk; the fields read before it are
// kept. Only a file yielding no element at all is an error.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	p, err := dicom.NewParser(f, fi.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return Info{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	var info Info
	parsed := 0
	for !info.complete() {
		elem, err := p.Next()
		if err != nil {
			break
		}
		parsed++
		info.set(elem)
	}
	if parsed == 0 {
		return Info{}, fmt.Errorf("parsing %s: no elements parsed", path)
	}
	return info, nil
}

func (i *Info) set(elem *dicom.Element) {
	switch elem.Tag {
	case tag.Modality:
		i.Modality = firstString(elem)
	case tag.SOPClassUID:
		i.SOPClassUID = firstString(elem)
	case tag.SOPInstanceUID:
		i.SOPInstanceUID = firstString(elem)
	case tag.PatientID:
		i.PatientID = firstString(elem)
	}
}

func (i *Info) complete() bool {
	return i.Modality != "" && i.SOPClassUID != "" && i.SOPInstanceUID != "" && i.PatientID != ""
}

// String renders the info for a progress line, e.g. "RTPLAN 1.2.840...".
func (i Info) String() string {
	modality := i.Modality
	if modality == "" {
		modality = "unknown modality"
	}
	if i.SOPInstanceUID == "" {
		return modality
	}
	return modality + " " + i.SOPInstanceUID
}

func firstString(elem *dicom.Element) string {
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	// UIDs are padded to even length with NUL, strings with spaces.
	return strings.TrimRight(values[0], " \x00")
}
