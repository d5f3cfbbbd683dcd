package mdoc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"tomoimport/internal/models"
)

const (
	zValuePrefix     = "[ZValue"
	titlePrefix      = "[T"
	tiltAxisPattern  = "tiltaxisangle="
	maxLineBytes     = 1 << 20
	initialLineBytes = 64 * 1024
)

// Tokenize splits an mdoc stream into its header block, its ZValue blocks
// and, when readTiltAxis is set, the tilt axis angle found in title lines.
func Tokenize(r io.Reader, readTiltAxis bool) (*models.Sections, error) {
	sections := models.NewSections()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialLineBytes), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, zValuePrefix):
			z, err := parseZValue(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if z != len(sections.Slices) {
				return nil, fmt.Errorf("%w = %d (expected %d)", ErrUnexpectedZValue, z, len(sections.Slices))
			}
			sections.StartSlice()
		case strings.HasPrefix(line, titlePrefix):
			sections.Titles = append(sections.Titles, line)
			if readTiltAxis && sections.TiltAxisAngle == nil {
				if angle, ok := tiltAxisFromTitle(line); ok {
					sections.TiltAxisAngle = &angle
				}
			}
		default:
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				return nil, fmt.Errorf("%w %d: %q", ErrMalformedLine, lineNo, line)
			}
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			if current := sections.Current(); current != nil {
				current[key] = value
			} else {
				sections.Header[key] = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

// parseZValue reads N from "[ZValue = N] optional comment".
func parseZValue(line string) (int, error) {
	inner, _, ok := strings.Cut(line, "]")
	if !ok {
		return 0, fmt.Errorf("%w: unterminated section header %q", ErrMalformedLine, line)
	}
	_, raw, ok := strings.Cut(inner, "=")
	if !ok {
		return 0, fmt.Errorf("%w: section header without value %q", ErrMalformedLine, line)
	}
	z, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: non-integer Z value %q", ErrMalformedLine, strings.TrimSpace(raw))
	}
	return z, nil
}

// tiltAxisFromTitle extracts the angle from title lines such as
//
//	[T =     Tilt axis angle = 90.1, binning = 1  spot = 9  camera = 0]
//	[T =     TiltAxisAngle = -91.81  Binning = 1  SpotSize = 7]
func tiltAxisFromTitle(line string) (float64, bool) {
	compact := strings.NewReplacer(" ", "", "\t", "", ",", "").Replace(line)
	compact = cases.Fold().String(compact)

	i := strings.Index(compact, tiltAxisPattern)
	if i < 0 {
		return 0, false
	}
	rest := compact[i+len(tiltAxisPattern):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+'
	})
	if end >= 0 {
		rest = rest[:end]
	}
	if !isPlainDecimal(rest) {
		return 0, false
	}
	angle, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	return angle, true
}

// isPlainDecimal accepts an optionally signed number with at most one dot.
func isPlainDecimal(s string) bool {
	digits := strings.Replace(strings.TrimLeft(s, "-+"), ".", "", 1)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
