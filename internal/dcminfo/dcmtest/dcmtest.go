// Package dcmtest writes minimal RT objects for tests.
package dcmtest

import (
	"bytes"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SOP classes of the files a plan check exports.
const (
	RTDoseStorage = "1.2.840.10008.5.1.4.1.1.481.2"
	RTPlanStorage = "1.2.840.10008.5.1.4.1.1.481.5"

	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// Object is the identifying header of one RT object.
type Object struct {
	Modality       string
	SOPClassUID    string
	SOPInstanceUID string
	PatientID      string
}

// RTPlan returns an RTPLAN object header.
func RTPlan(patientID, sopInstanceUID string) Object {
	return Object{Modality: "RTPLAN", SOPClassUID: RTPlanStorage, SOPInstanceUID: sopInstanceUID, PatientID: patientID}
}

// RTDose returns an RTDOSE object header.
func RTDose(patientID, sopInstanceUID string) Object {
	return Object{Modality: "RTDOSE", SOPClassUID: RTDoseStorage, SOPInstanceUID: sopInstanceUID, PatientID: patientID}
}

// Dataset builds the file meta group and header elements. Empty fields are
// left out.
func (o Object) Dataset() dicom.Dataset {
	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
	}
	add := func(t tag.Tag, v string) {
		if v != "" {
			elements = append(elements, mustNewElement(t, []string{v}))
		}
	}
	add(tag.MediaStorageSOPClassUID, o.SOPClassUID)
	add(tag.MediaStorageSOPInstanceUID, o.SOPInstanceUID)
	add(tag.PatientID, o.PatientID)
	add(tag.Modality, o.Modality)
	add(tag.SOPClassUID, o.SOPClassUID)
	add(tag.SOPInstanceUID, o.SOPInstanceUID)
	return dicom.Dataset{Elements: elements}
}

// Bytes encodes the object as a Part 10 file.
func (o Object) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := dicom.Write(&buf, o.Dataset()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the encoded object to path.
func (o Object) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return dicom.Write(f, o.Dataset())
}

func mustNewElement(t tag.Tag, data any) *dicom.Element {
	e, err := dicom.NewElement(t, data)
	if err != nil {
		panic(err)
	}
	return e
}
