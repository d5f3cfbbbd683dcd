package mdoc

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"tomoimport/internal/models"
)

// DoseFormula computes the dose (e-/Å²) of one slice from its own fields.
// A zero result means the formula does not apply and the next one is tried.
type DoseFormula struct {
	Name    string
	Compute func(slice models.Block, pixelSize float64) (float64, error)
}

// DoseFormulas are tried in this order; the first non-zero result wins.
var DoseFormulas = []DoseFormula{
	{Name: KeyExposureDose, Compute: doseFromExposureDose},
	{Name: KeyFrameDosesAndNumber, Compute: doseFromFrameDoses},
	{Name: KeyDoseRate + "*" + KeyExposureTime, Compute: doseFromDoseRate},
	{Name: KeyMinMaxMean + "/" + KeyCountsPerElectron, Compute: doseFromMeanCounts},
}

// SliceDose returns the dose contributed by a single slice. A non-zero
// perImage override is used as is and bypasses every formula. A missing
// pixel size is taken as 1 so that the formulas can run before the
// validator reports it.
func SliceDose(slice models.Block, pixelSize, perImage *float64) (float64, error) {
	if perImage != nil && *perImage != 0 {
		return *perImage, nil
	}
	px := 1.0
	if pixelSize != nil && *pixelSize != 0 {
		px = *pixelSize
	}
	for _, f := range DoseFormulas {
		dose, err := f.Compute(slice, px)
		if err != nil {
			return 0, err
		}
		if dose != 0 {
			return dose, nil
		}
	}
	return 0, nil
}

// AccumulateDose returns the running total of the incoming doses, in order.
func AccumulateDose(incoming []float64) []float64 {
	accumulated := make([]float64, len(incoming))
	if len(incoming) == 0 {
		return accumulated
	}
	return floats.CumSum(accumulated, incoming)
}

// HasDose reports whether a total dose is meaningfully above zero.
// Half-to-even rounding keeps 0.5 on the "no dose" side.
func HasDose(total float64) bool {
	return math.RoundToEven(total) > 0
}

func doseFromExposureDose(slice models.Block, _ float64) (float64, error) {
	return floatOrZero(slice, KeyExposureDose)
}

// FrameDosesAndNumber looks like "0 6": dose per frame, then frame count.
func doseFromFrameDoses(slice models.Block, _ float64) (float64, error) {
	if !slice.Has(KeyFrameDosesAndNumber) {
		return 0, nil
	}
	fields := slice.Fields(KeyFrameDosesAndNumber)
	if len(fields) < 2 {
		raw, _ := slice.Get(KeyFrameDosesAndNumber)
		return 0, fmt.Errorf("%w: %s = %q needs two values", ErrBadNumber, KeyFrameDosesAndNumber, raw)
	}
	perFrame, err := parseField(KeyFrameDosesAndNumber, fields[0])
	if err != nil {
		return 0, err
	}
	frames, err := parseField(KeyFrameDosesAndNumber, fields[1])
	if err != nil {
		return 0, err
	}
	return perFrame * frames, nil
}

func doseFromDoseRate(slice models.Block, pixelSize float64) (float64, error) {
	rate, err := floatOrZero(slice, KeyDoseRate)
	if err != nil {
		return 0, err
	}
	exposure, err := floatOrZero(slice, KeyExposureTime)
	if err != nil {
		return 0, err
	}
	if rate == 0 || exposure == 0 {
		return 0, nil
	}
	return rate * exposure / (pixelSize * pixelSize), nil
}

// MinMaxMean looks like "-42 2441 51.7968"; the mean is the last value.
// Any non-empty DividedBy2, "0" included, doubles the result
// (https://dx.doi.org/10.7554/eLife.06980.001).
func doseFromMeanCounts(slice models.Block, pixelSize float64) (float64, error) {
	counts, err := floatOrZero(slice, KeyCountsPerElectron)
	if err != nil {
		return 0, err
	}
	if !slice.Has(KeyMinMaxMean) || counts == 0 {
		return 0, nil
	}
	fields := slice.Fields(KeyMinMaxMean)
	mean, err := parseField(KeyMinMaxMean, fields[len(fields)-1])
	if err != nil {
		return 0, err
	}
	dose := (mean / counts) / (pixelSize * pixelSize)
	if slice.Has(KeyDividedBy2) {
		dose *= 2
	}
	return dose, nil
}

func floatOrZero(slice models.Block, key string) (float64, error) {
	v, ok, err := slice.Float(key)
	if err != nil {
		raw, _ := slice.Get(key)
		return 0, fmt.Errorf("%w: %s = %q", ErrBadNumber, key, raw)
	}
	if !ok {
		return 0, nil
	}
	return v, nil
}

func parseField(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q", ErrBadNumber, key, raw)
	}
	return v, nil
}
