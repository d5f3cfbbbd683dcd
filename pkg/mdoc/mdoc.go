package mdoc

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"tomoimport/internal/compress"
	"tomoimport/internal/logging"
	"tomoimport/internal/models"
)

// Overrides are values supplied by the user. Any non-nil field takes
// precedence over what the mdoc file says, and a pointer to 0 is a real
// value that still wins. DosePerImage is the exception: 0 falls back to the
// dose fields of each slice.
type Overrides struct {
	Voltage       *float64
	Magnification *float64
	SamplingRate  *float64
	DosePerImage  *float64
	TiltAxisAngle *float64
}

// Float returns a pointer to v, for building Overrides.
func Float(v float64) *float64 { return &v }

// Option configures an MDoc.
type Option func(*MDoc)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(m *MDoc) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStackFile points every slice of a stacked import at path instead of
// resolving the stack next to the mdoc file.
func WithStackFile(path string) Option {
	return func(m *MDoc) { m.stackFile = path }
}

// MDoc reads one mdoc file.
type MDoc struct {
	fileName  string
	overrides Overrides
	stackFile string
	logger    *slog.Logger
}

// New creates a reader for fileName. Nothing is read until ParseAndValidate.
func New(fileName string, overrides Overrides, opts ...Option) *MDoc {
	m := &MDoc{
		fileName:  fileName,
		overrides: overrides,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FileName returns the mdoc path.
func (m *MDoc) FileName() string { return m.fileName }

// ParseAndValidate reads the file and checks what was read.
//
// importingMovies selects between per-tilt movies (each slice points at its
// SubFramePath) and an already stacked tilt series (every slice points at
// one stack file, and tilts are finally ordered by angle). ignoreFileValidation
// skips the per-slice file existence check.
//
// A *ParseError is returned when the file cannot be parsed at all. Otherwise
// the document is returned and its Deficiencies describe what is missing.
func (m *MDoc) ParseAndValidate(importingMovies, ignoreFileValidation bool) (*Document, error) {
	doc, err := m.read(importingMovies)
	if err != nil {
		return nil, newParseError(m.fileName, err)
	}

	if !importingMovies {
		if d := ValidateStackFile(doc.stackFile); d != nil {
			doc.deficiencies = append(doc.deficiencies, *d)
		}
	}
	doc.deficiencies = append(doc.deficiencies, Validate(doc, ignoreFileValidation || !importingMovies)...)

	// Stacks are assumed to follow the angle order.
	if !importingMovies && len(doc.deficiencies) == 0 {
		SortByAngle(doc.tilts)
	}

	m.logger.Debug("mdoc read",
		slog.String("file", m.fileName),
		slog.String("ts_id", doc.tsID),
		slog.Int("tilts", len(doc.tilts)),
		slog.Int("deficiencies", len(doc.deficiencies)),
	)
	return doc, nil
}

func (m *MDoc) read(importingMovies bool) (*Document, error) {
	sections, err := m.tokenize()
	if err != nil {
		return nil, err
	}
	if len(sections.Slices) == 0 {
		return nil, ErrNoSlices
	}

	slices, err := SortByTimestamp(sections.Slices)
	if err != nil {
		return nil, err
	}

	acq, err := ResolveAcquisition(m.overrides, sections.Header, slices[0])
	if err != nil {
		return nil, err
	}

	doc := &Document{
		fileName:      m.fileName,
		voltage:       acq.Voltage,
		magnification: acq.Magnification,
		samplingRate:  acq.SamplingRate,
		tiltAxisAngle: copyFloat(m.overrides.TiltAxisAngle),
		titles:        sections.Titles,
	}
	if doc.tiltAxisAngle == nil && sections.TiltAxisAngle != nil {
		doc.tiltAxisAngle = sections.TiltAxisAngle
		m.logger.Debug("tilt axis angle read from title", slog.Float64("angle", *doc.tiltAxisAngle))
	}
	doc.tsID, doc.tsPrefixAdded = NormalizeTSIDWithPrefix(m.fileName)

	dir := filepath.Dir(m.fileName)
	if !importingMovies {
		doc.stackFile = m.stackFile
		if doc.stackFile == "" {
			doc.stackFile = ResolveStackFile(dir, sections.Header, doc.tsID, doc.tsPrefixAdded)
		}
	}

	doc.tilts, err = BuildSlices(slices, dir, doc.stackFile, acq.SamplingRate, m.overrides.DosePerImage)
	if err != nil {
		return nil, err
	}
	if n := len(doc.tilts); n > 0 {
		doc.accumulatedDose = doc.tilts[n-1].AccumulatedDose
	}
	doc.hasDose = HasDose(doc.accumulatedDose)
	if !doc.hasDose {
		m.logger.Debug("dose not found or almost 0",
			slog.Float64("accumulated_dose", doc.accumulatedDose),
			slog.String("file", m.fileName))
	}
	return doc, nil
}

func (m *MDoc) tokenize() (*models.Sections, error) {
	rc, err := compress.Open(m.fileName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Tokenize(rc, m.overrides.TiltAxisAngle == nil)
}

// ResolveStackFile finds the stack a non-movie mdoc describes: the header
// ImageFile, then <base>.mrcs, <base>.mrc and <base>.st next to the mdoc,
// where base is tsID without an added TS_ prefix. The last candidate is
// returned when none exists, so that it can be reported.
func ResolveStackFile(dir string, header models.Block, tsID string, prefixAdded bool) string {
	base := tsID
	if prefixAdded {
		base = strings.TrimPrefix(tsID, TSPrefix)
	}
	var candidates []string
	if name, _ := header.Get(KeyImageFile); name != "" {
		candidates = append(candidates, filepath.Join(dir, lastPathComponent(name)))
	}
	for _, ext := range []string{".mrcs", ".mrc", ".st"} {
		candidates = append(candidates, filepath.Join(dir, base+ext))
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// Angles returns the tilt angles of an mdoc file in file order.
func Angles(fileName string) ([]float64, error) {
	rc, err := compress.Open(fileName)
	if err != nil {
		return nil, newParseError(fileName, err)
	}
	defer rc.Close()

	sections, err := Tokenize(rc, false)
	if err != nil {
		return nil, newParseError(fileName, err)
	}
	angles := make([]float64, len(sections.Slices))
	for i, s := range sections.Slices {
		a, err := optionalFloat(s, KeyTiltAngle)
		if err != nil {
			return nil, newParseError(fileName, fmt.Errorf("Z value %d: %w", i, err))
		}
		if a == nil {
			return nil, newParseError(fileName, fmt.Errorf("Z value %d: %w", i, ErrMissingTiltAngle))
		}
		angles[i] = *a
	}
	return angles, nil
}

// Document is the typed content of an mdoc file. It is read-only once
// returned by ParseAndValidate.
type Document struct {
	fileName        string
	tsID            string
	tsPrefixAdded   bool
	voltage         *float64
	magnification   *float64
	samplingRate    *float64
	tiltAxisAngle   *float64
	hasDose         bool
	accumulatedDose float64
	stackFile       string
	titles          []string
	tilts           []TiltSliceMetadata
	deficiencies    []Deficiency
}

func (d *Document) GetFileName() string { return d.fileName }

func (d *Document) GetTsID() string { return d.tsID }

// TsPrefixAdded reports whether TS_ was prepended to build the tsId.
func (d *Document) TsPrefixAdded() bool { return d.tsPrefixAdded }

func (d *Document) GetVoltage() (float64, bool) { return deref(d.voltage) }

func (d *Document) GetMagnification() (float64, bool) { return deref(d.magnification) }

// GetSamplingRate returns the pixel size in Å/px.
func (d *Document) GetSamplingRate() (float64, bool) { return deref(d.samplingRate) }

func (d *Document) GetTiltAxisAngle() (float64, bool) { return deref(d.tiltAxisAngle) }

func (d *Document) HasDose() bool { return d.hasDose }

// AccumulatedDose is the total dose over every tilt.
func (d *Document) AccumulatedDose() float64 { return d.accumulatedDose }

// StackFile is the shared tilt-series file of a stacked import, or "".
func (d *Document) StackFile() string { return d.stackFile }

// Titles returns the raw [T = ...] lines of the file, in file order.
func (d *Document) Titles() []string {
	out := make([]string, len(d.titles))
	copy(out, d.titles)
	return out
}

// GetTiltSliceMetadata returns a copy of the tilts in final order.
func (d *Document) GetTiltSliceMetadata() []TiltSliceMetadata {
	out := make([]TiltSliceMetadata, len(d.tilts))
	copy(out, d.tilts)
	return out
}

// Deficiencies returns every validation finding.
func (d *Document) Deficiencies() []Deficiency {
	out := make([]Deficiency, len(d.deficiencies))
	copy(out, d.deficiencies)
	return out
}

// Valid reports whether validation found nothing to complain about.
func (d *Document) Valid() bool { return len(d.deficiencies) == 0 }

// Report renders the deficiencies as a human-readable block, or "" when the
// document is valid.
func (d *Document) Report() string {
	if d.Valid() {
		return ""
	}
	var b strings.Builder
	var missing, references []Deficiency
	for _, def := range d.deficiencies {
		if def.Field == FieldStackFile {
			references = append(references, def)
			continue
		}
		missing = append(missing, def)
	}
	for _, def := range references {
		fmt.Fprintf(&b, "Mdoc --> %s\n%s\n", d.fileName, def.Detail)
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "%s is missing:\n", d.fileName)
		for _, def := range missing {
			fmt.Fprintf(&b, " - %s\n", def)
		}
	}
	return b.String()
}

// Diagnose returns the text shown to a user for the outcome of
// ParseAndValidate: the critical error message, the deficiency report, or ""
// when the file is fine.
func Diagnose(doc *Document, err error) string {
	if err != nil {
		return err.Error() + "\n"
	}
	if doc == nil {
		return ""
	}
	return doc.Report()
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
