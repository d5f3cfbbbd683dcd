package mdoc

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"tomoimport/internal/models"
)

// TiltSliceMetadata describes one acquired tilt image.
type TiltSliceMetadata struct {
	// Angle is the tilt angle in degrees; nil when the slice has no TiltAngle
	Angle *float64

	// SourceFile is the movie of this tilt, or the shared stack file
	SourceFile string

	// StackIndex is the 1-based position inside SourceFile when the tilts
	// come from a stack; 0 for movies
	StackIndex int

	// AcquisitionOrder is the 1-based position in acquisition order
	AcquisitionOrder int

	// IncomingDose is the dose received by this image alone (e-/Å²)
	IncomingDose float64

	// AccumulatedDose is the dose received up to and including this image
	AccumulatedDose float64
}

// BuildSlices turns the sorted slice blocks into tilt metadata. mdocDir is
// the directory of the mdoc file; stackFile, when set, is used as the source
// of every slice instead of the per-slice SubFramePath.
func BuildSlices(slices []models.Block, mdocDir, stackFile string, pixelSize, perImageDose *float64) ([]TiltSliceMetadata, error) {
	tilts := make([]TiltSliceMetadata, len(slices))
	incoming := make([]float64, len(slices))

	for i, slice := range slices {
		angle, err := optionalFloat(slice, KeyTiltAngle)
		if err != nil {
			return nil, fmt.Errorf("Z value %d: %w", i, err)
		}
		source, err := sourceFile(slice, mdocDir, stackFile)
		if err != nil {
			return nil, fmt.Errorf("Z value %d: %w", i, err)
		}
		dose, err := SliceDose(slice, pixelSize, perImageDose)
		if err != nil {
			return nil, fmt.Errorf("Z value %d: %w", i, err)
		}
		incoming[i] = dose
		tilts[i] = TiltSliceMetadata{
			Angle:            angle,
			SourceFile:       source,
			AcquisitionOrder: i + 1,
			IncomingDose:     dose,
		}
	}

	for i, acc := range AccumulateDose(incoming) {
		tilts[i].AccumulatedDose = acc
	}
	return tilts, nil
}

// SortByAngle orders stacked tilts by ascending angle and renumbers both the
// acquisition order and the stack index to the new 1-based rank. Every tilt
// must have an angle.
func SortByAngle(tilts []TiltSliceMetadata) {
	sort.SliceStable(tilts, func(i, j int) bool {
		return *tilts[i].Angle < *tilts[j].Angle
	})
	for i := range tilts {
		tilts[i].AcquisitionOrder = i + 1
		tilts[i].StackIndex = i + 1
	}
}

func sourceFile(slice models.Block, mdocDir, stackFile string) (string, error) {
	if stackFile != "" {
		return stackFile, nil
	}
	raw, _ := slice.Get(KeySubFramePath)
	name := lastPathComponent(raw)
	if name == "" {
		return "", ErrMissingSubFramePath
	}
	return filepath.Join(mdocDir, name), nil
}

// lastPathComponent accepts both slash and backslash separators, since
// SubFramePath is usually written on the Windows acquisition host.
func lastPathComponent(p string) string {
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	// "X:" alone is a drive, not a file.
	if len(parts) == 1 && len(last) == 2 && last[1] == ':' {
		return ""
	}
	return last
}
