package mdoc

import (
	"os"
	"strconv"
	"strings"
)

// Deficiency field names.
const (
	FieldVoltage       = "Voltage"
	FieldMagnification = "Magnification"
	FieldPixelSpacing  = "PixelSpacing"
	FieldDose          = "Dose values"
	FieldTiltAxisAngle = "RotationAngle (tilt axis angle)"
	FieldTiltAngle     = "TiltAngle"
	FieldFiles         = "Missing files"
	FieldStackFile     = "Tilt series file"
)

const doseHint = "related mdoc labels are: " + KeyExposureDose + " or " + KeyFrameDosesAndNumber +
	" or (" + KeyDoseRate + " and " + KeyExposureTime + ")" +
	" or (" + KeyMinMaxMean + " and " + KeyCountsPerElectron + ")"

// Validate runs every post-parse check on doc and returns all findings.
// The per-slice file existence check is skipped when ignoreFiles is set.
func Validate(doc *Document, ignoreFiles bool) []Deficiency {
	var out []Deficiency
	missing := func(field, detail string) {
		out = append(out, Deficiency{Kind: DeficiencyValidation, Field: field, Detail: detail})
	}

	if doc.voltage == nil {
		missing(FieldVoltage, "")
	}
	if doc.magnification == nil {
		missing(FieldMagnification, "")
	}
	if doc.samplingRate == nil {
		missing(FieldPixelSpacing, "")
	}
	if !doc.hasDose {
		missing(FieldDose, doseHint)
	}
	if doc.tiltAxisAngle == nil {
		missing(FieldTiltAxisAngle, "")
	}

	var noAngle, noFile []string
	for i, tilt := range doc.tilts {
		if tilt.Angle == nil {
			noAngle = append(noAngle, strconv.Itoa(i))
		}
		if !ignoreFiles && !fileExists(tilt.SourceFile) {
			noFile = append(noFile, tilt.SourceFile)
		}
	}
	if len(noAngle) > 0 {
		missing(FieldTiltAngle, "Z values "+strings.Join(noAngle, ", "))
	}
	if len(noFile) > 0 {
		out = append(out, Deficiency{
			Kind:   DeficiencyExternalReference,
			Field:  FieldFiles,
			Detail: strings.Join(noFile, ", "),
		})
	}
	return out
}

// ValidateStackFile checks that the shared tilt-series file exists.
func ValidateStackFile(path string) *Deficiency {
	if path != "" && fileExists(path) {
		return nil
	}
	return &Deficiency{
		Kind:   DeficiencyExternalReference,
		Field:  FieldStackFile,
		Detail: "expected tilt series file not found " + path,
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
