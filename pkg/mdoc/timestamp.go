package mdoc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tomoimport/internal/models"
)

// SerialEM writes DateTime as "30-Nov-21  17:42:06" or "30-Nov-2021  17:42:06".
// Whitespace runs are collapsed before parsing, so one space separates date and time.
const (
	layoutTwoDigitYear  = "2-Jan-06 15:04:05"
	layoutFourDigitYear = "2-Jan-2006 15:04:05"
)

// DetectDateTimeLayout picks the time layout for every slice of a file from
// the date part of the first slice's DateTime value: a 9-character date
// ("30-Nov-21") means a two-digit year, anything else a four-digit year.
func DetectDateTimeLayout(value string) string {
	fields := strings.Fields(value)
	if len(fields) > 0 && len(fields[0]) == 9 {
		return layoutTwoDigitYear
	}
	return layoutFourDigitYear
}

// SortByTimestamp returns the slices in acquisition order. The file order is
// kept when the first slice carries no DateTime. Once the first slice has
// one, every slice must have a parseable one.
func SortByTimestamp(slices []models.Block) ([]models.Block, error) {
	if len(slices) == 0 {
		return slices, nil
	}
	first, ok := slices[0].Get(KeyDateTime)
	if !ok {
		return slices, nil
	}
	layout := DetectDateTimeLayout(first)

	stamps := make([]time.Time, len(slices))
	for i, s := range slices {
		raw, ok := s.Get(KeyDateTime)
		if !ok {
			return nil, fmt.Errorf("%w (Z value %d)", ErrMissingDateTime, i)
		}
		ts, err := parseDateTime(layout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q (Z value %d): %v", ErrBadDateTime, raw, i, err)
		}
		stamps[i] = ts
	}

	order := make([]int, len(slices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return stamps[order[a]].Before(stamps[order[b]])
	})

	sorted := make([]models.Block, len(slices))
	for i, idx := range order {
		sorted[i] = slices[idx]
	}
	return sorted, nil
}

// parseDateTime tries layout first and then the other year width, so that a
// day written without padding ("1-Dec-21") still parses.
func parseDateTime(layout, raw string) (time.Time, error) {
	value := strings.Join(strings.Fields(raw), " ")
	ts, err := time.Parse(layout, value)
	if err == nil {
		return ts, nil
	}
	alt := layoutFourDigitYear
	if layout == layoutFourDigitYear {
		alt = layoutTwoDigitYear
	}
	if ts, altErr := time.Parse(alt, value); altErr == nil {
		return ts, nil
	}
	return time.Time{}, err
}
