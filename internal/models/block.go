package models

import (
	"strconv"
	"strings"
)

// Block holds the key/value pairs of one mdoc section. It is used both for
// the global header (lines before the first [ZValue] header) and for every
// per-image ZValue section.
type Block map[string]string

// Get returns the trimmed value stored under key and whether it was present.
func (b Block) Get(key string) (string, bool) {
	v, ok := b[key]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Has reports whether key is present with a non-empty value.
func (b Block) Has(key string) bool {
	v, ok := b.Get(key)
	return ok && v != ""
}

// Float parses the value stored under key.
// ok is false when the key is absent or empty; err is set only when a value
// exists but is not a number.
func (b Block) Float(key string) (value float64, ok bool, err error) {
	v, present := b.Get(key)
	if !present || v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

// Fields splits the value stored under key on whitespace.
func (b Block) Fields(key string) []string {
	v, _ := b.Get(key)
	return strings.Fields(v)
}

// Sections is the result of a single tokenizer pass over an mdoc file.
type Sections struct {
	// Header holds global key/value pairs found before the first ZValue section
	Header Block

	// Slices holds one block per [ZValue = N] section, in file order
	Slices []Block

	// TiltAxisAngle is the angle recovered from a [T = ...] title line, if any
	TiltAxisAngle *float64

	// Titles keeps the raw title lines in the order they were found
	Titles []string
}

// NewSections returns an empty Sections value ready to be filled.
func NewSections() *Sections {
	return &Sections{
		Header: make(Block),
		Slices: make([]Block, 0),
	}
}

// Current returns the ZValue block being filled, or nil before the first one.
func (s *Sections) Current() Block {
	if len(s.Slices) == 0 {
		return nil
	}
	return s.Slices[len(s.Slices)-1]
}

// StartSlice opens a new ZValue block and returns it.
func (s *Sections) StartSlice() Block {
	b := make(Block)
	s.Slices = append(s.Slices, b)
	return b
}
