package mdoc

import (
	"fmt"

	"tomoimport/internal/models"
)

// Acquisition holds the acquisition-wide values of a tilt series.
type Acquisition struct {
	Voltage       *float64
	Magnification *float64
	SamplingRate  *float64
}

// ResolveAcquisition fills every field the caller did not override, looking
// first in the first (post-sort) slice and then in the header. Fields are
// resolved independently of each other.
func ResolveAcquisition(overrides Overrides, header, firstSlice models.Block) (Acquisition, error) {
	var acq Acquisition
	var err error
	if acq.Voltage, err = resolveField(overrides.Voltage, KeyVoltage, header, firstSlice); err != nil {
		return acq, err
	}
	if acq.Magnification, err = resolveField(overrides.Magnification, KeyMagnification, header, firstSlice); err != nil {
		return acq, err
	}
	if acq.SamplingRate, err = resolveField(overrides.SamplingRate, KeyPixelSpacing, header, firstSlice); err != nil {
		return acq, err
	}
	return acq, nil
}

func resolveField(override *float64, key string, header, firstSlice models.Block) (*float64, error) {
	if override != nil {
		v := *override
		return &v, nil
	}
	for _, source := range []models.Block{firstSlice, header} {
		if source == nil {
			continue
		}
		if _, present := source.Get(key); !present {
			continue
		}
		return optionalFloat(source, key)
	}
	return nil, nil
}

// optionalFloat reads key from b; absent or empty values yield nil.
func optionalFloat(b models.Block, key string) (*float64, error) {
	v, ok, err := b.Float(key)
	if err != nil {
		raw, _ := b.Get(key)
		return nil, fmt.Errorf("%w: %s = %q", ErrBadNumber, key, raw)
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}
