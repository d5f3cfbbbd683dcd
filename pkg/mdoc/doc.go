// Package mdoc reads SerialEM "autodoc" (.mdoc) files describing a
// cryo-electron tomography tilt series and turns them into typed per-tilt
// metadata.
//
// # File Format Overview
//
// An mdoc file is a sequence of key/value lines organized into sections.
// Lines before the first section header are global values:
//
//	PixelSpacing = 3.64
//	Voltage = 200.00
//	ImageFile = 20211130_PKV_tomo_01.mrc
//
// Title sections carry free text; only the tilt axis angle is read from them:
//
//	[T = Tomography: TALOS-D3558    21-Nov-30  17:42:06]
//	[T =   TiltAxisAngle = -91.81  Binning = 1  SpotSize = 7]
//
// Every acquired image has a ZValue section numbered from 0:
//
//	[ZValue = 0]
//	TiltAngle = -0.01
//	SubFramePath = X:\frames\TS_01_000_-0.0.tif
//	DateTime = 30-Nov-21  17:42:06
//
// # Basic Usage
//
//	m := mdoc.New("TS_01.mdoc", mdoc.Overrides{})
//	doc, err := m.ParseAndValidate(true, false)
//	if err != nil {
//		// *mdoc.ParseError: the file was skipped
//	}
//	if !doc.Valid() {
//		fmt.Print(doc.Report())
//	}
//
// A description of each key is available at
// https://bio3d.colorado.edu/SerialEM/hlp/html/about_formats.htm
package mdoc

// Keys read by the parser.
const (
	KeyVoltage       = "Voltage"
	KeyMagnification = "Magnification"
	KeyPixelSpacing  = "PixelSpacing"
	KeyTiltAngle     = "TiltAngle"
	KeyDateTime      = "DateTime"
	KeySubFramePath  = "SubFramePath"
	KeyImageFile     = "ImageFile"

	// Dose on specimen during camera exposure in electrons/sq. Angstrom
	KeyExposureDose = "ExposureDose"
	// Dose per frame in electrons/sq. Angstrom followed by the number of
	// frames at that dose
	KeyFrameDosesAndNumber = "FrameDosesAndNumber"
	// Dose rate to the camera, in electrons per unbinned pixel per second
	KeyDoseRate     = "DoseRate"
	KeyExposureTime = "ExposureTime"
	// Minimum, maximum, and mean value for this image
	KeyMinMaxMean        = "MinMaxMean"
	KeyCountsPerElectron = "CountsPerElectron"
	KeyDividedBy2        = "DividedBy2"
)
