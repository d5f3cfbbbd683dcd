package mdoc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

const roundTripMdoc = `Voltage = 300
Magnification = 53000
PixelSpacing = 1.716

[T = SerialEM: Acquired on Krios  30-Nov-21  17:40:00]
[T =     TiltAxisAngle = 85.3  Binning = 1  SpotSize = 7]

[ZValue = 0]
TiltAngle = 0.01
ExposureDose = 3
SubFramePath = X:\frames\TS_01_000_0.0.tif

[ZValue = 1]
TiltAngle = 3.00
ExposureDose = 3
SubFramePath = X:\frames\TS_01_001_3.0.tif
`

// writeMdoc writes content to dir/name and returns the full path.
func writeMdoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestParseAndValidateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeMdoc(t, dir, "TS_01.mdoc", roundTripMdoc)

	doc, err := New(path, Overrides{}).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if !doc.Valid() {
		t.Fatalf("expected no deficiencies, got:\n%s", doc.Report())
	}
	if doc.GetTsID() != "TS_01" {
		t.Errorf("tsId = %q", doc.GetTsID())
	}
	if v, ok := doc.GetVoltage(); !ok || v != 300 {
		t.Errorf("voltage = %v, %v", v, ok)
	}
	if v, ok := doc.GetMagnification(); !ok || v != 53000 {
		t.Errorf("magnification = %v, %v", v, ok)
	}
	if v, ok := doc.GetSamplingRate(); !ok || v != 1.716 {
		t.Errorf("sampling rate = %v, %v", v, ok)
	}
	if v, ok := doc.GetTiltAxisAngle(); !ok || v != 85.3 {
		t.Errorf("tilt axis angle = %v, %v", v, ok)
	}
	if !doc.HasDose() || doc.AccumulatedDose() != 6 {
		t.Errorf("dose: has=%v total=%v", doc.HasDose(), doc.AccumulatedDose())
	}

	tilts := doc.GetTiltSliceMetadata()
	if len(tilts) != 2 {
		t.Fatalf("expected 2 tilts, got %d", len(tilts))
	}
	second := tilts[1]
	if second.Angle == nil || *second.Angle != 3 {
		t.Errorf("second angle = %v", second.Angle)
	}
	if second.AcquisitionOrder != 2 || second.IncomingDose != 3 || second.AccumulatedDose != 6 {
		t.Errorf("unexpected second tilt %+v", second)
	}
	if want := filepath.Join(dir, "TS_01_001_3.0.tif"); second.SourceFile != want {
		t.Errorf("source file = %q, want %q", second.SourceFile, want)
	}
	if doc.Report() != "" || Diagnose(doc, nil) != "" {
		t.Errorf("expected empty report")
	}
}

func TestParseAndValidateOverridesWin(t *testing.T) {
	path := writeMdoc(t, t.TempDir(), "TS_02.mdoc", roundTripMdoc)
	ov := Overrides{
		Voltage:       Float(200),
		DosePerImage:  Float(1.5),
		TiltAxisAngle: Float(-90),
	}
	doc, err := New(path, ov).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if v, _ := doc.GetVoltage(); v != 200 {
		t.Errorf("voltage override lost: %v", v)
	}
	if v, _ := doc.GetMagnification(); v != 53000 {
		t.Errorf("magnification must still come from the file: %v", v)
	}
	if v, _ := doc.GetTiltAxisAngle(); v != -90 {
		t.Errorf("tilt axis override lost: %v", v)
	}
	if doc.AccumulatedDose() != 3 {
		t.Errorf("dose override not used: %v", doc.AccumulatedDose())
	}
}

func TestParseAndValidateZeroOverrideIsAValue(t *testing.T) {
	path := writeMdoc(t, t.TempDir(), "TS_04.mdoc", roundTripMdoc)
	ov := Overrides{
		Voltage:       Float(0),
		TiltAxisAngle: Float(0),
		DosePerImage:  Float(0),
	}
	doc, err := New(path, ov).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if v, ok := doc.GetVoltage(); !ok || v != 0 {
		t.Errorf("zero voltage override must win over the header: %v, %v", v, ok)
	}
	if v, ok := doc.GetTiltAxisAngle(); !ok || v != 0 {
		t.Errorf("zero tilt axis override must win over the title: %v, %v", v, ok)
	}
	if doc.AccumulatedDose() != 6 {
		t.Errorf("zero dose per image must fall back to the slice doses: %v", doc.AccumulatedDose())
	}
}

func TestParseAndValidateKeepsTitles(t *testing.T) {
	path := writeMdoc(t, t.TempDir(), "TS_05.mdoc", roundTripMdoc)
	doc, err := New(path, Overrides{}).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	titles := doc.Titles()
	if len(titles) != 2 || !strings.HasPrefix(titles[0], "[T = SerialEM") {
		t.Fatalf("unexpected titles %q", titles)
	}
	titles[0] = "changed"
	if doc.Titles()[0] == "changed" {
		t.Error("Titles must return a copy")
	}
}

func TestParseAndValidateFirstSliceBeatsHeader(t *testing.T) {
	content := strings.Replace(roundTripMdoc, "TiltAngle = 0.01\n", "TiltAngle = 0.01\nVoltage = 120\n", 1)
	path := writeMdoc(t, t.TempDir(), "TS_03.mdoc", content)
	doc, err := New(path, Overrides{}).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if v, _ := doc.GetVoltage(); v != 120 {
		t.Fatalf("expected first slice voltage, got %v", v)
	}
}

func TestParseAndValidateStructuralError(t *testing.T) {
	content := strings.Replace(roundTripMdoc, "[ZValue = 1]", "[ZValue = 2]", 1)
	path := writeMdoc(t, t.TempDir(), "TS_04.mdoc", content)

	doc, err := New(path, Overrides{}).ParseAndValidate(true, true)
	if doc != nil {
		t.Fatal("no document may be returned on a structural error")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T %v", err, err)
	}
	if perr.Kind != KindStructural || !errors.Is(err, ErrUnexpectedZValue) {
		t.Fatalf("unexpected error %v (kind %s)", err, perr.Kind)
	}
	msg := Diagnose(nil, err)
	if !strings.Contains(msg, "CRITICAL") || !strings.Contains(msg, path) || !strings.Contains(msg, "= 2") {
		t.Fatalf("diagnostic does not name file and cause: %q", msg)
	}
}

func TestParseAndValidateMissingSubFramePath(t *testing.T) {
	content := strings.Replace(roundTripMdoc, `SubFramePath = X:\frames\TS_01_001_3.0.tif`, "", 1)
	path := writeMdoc(t, t.TempDir(), "TS_05.mdoc", content)

	_, err := New(path, Overrides{}).ParseAndValidate(true, true)
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Kind != KindField {
		t.Fatalf("expected field error, got %v", err)
	}
	if !errors.Is(err, ErrMissingSubFramePath) || !strings.Contains(err.Error(), KeySubFramePath) {
		t.Fatalf("error must name %s: %v", KeySubFramePath, err)
	}
}

func TestParseAndValidateNoSlices(t *testing.T) {
	path := writeMdoc(t, t.TempDir(), "TS_06.mdoc", "Voltage = 300\n")
	if _, err := New(path, Overrides{}).ParseAndValidate(true, true); !errors.Is(err, ErrNoSlices) {
		t.Fatalf("expected ErrNoSlices, got %v", err)
	}
}

func TestParseAndValidateMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.mdoc"), Overrides{}).ParseAndValidate(true, true)
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Kind != KindIO {
		t.Fatalf("expected io ParseError, got %v", err)
	}
}

func TestValidationReportsEveryDeficiency(t *testing.T) {
	content := `Magnification = 53000

[ZValue = 0]
TiltAngle = 0.01
SubFramePath = frames/a.tif

[ZValue = 1]
SubFramePath = frames/b.tif

[ZValue = 2]
TiltAngle = 6
SubFramePath = frames/c.tif
`
	dir := t.TempDir()
	path := writeMdoc(t, dir, "TS_07.mdoc", content)
	writeMdoc(t, dir, "a.tif", "")

	doc, err := New(path, Overrides{}).ParseAndValidate(true, false)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	fields := map[string]Deficiency{}
	for _, d := range doc.Deficiencies() {
		fields[d.Field] = d
	}
	for _, want := range []string{FieldVoltage, FieldPixelSpacing, FieldDose, FieldTiltAxisAngle, FieldTiltAngle, FieldFiles} {
		if _, ok := fields[want]; !ok {
			t.Errorf("missing deficiency %q in %v", want, doc.Deficiencies())
		}
	}
	if _, ok := fields[FieldMagnification]; ok {
		t.Error("magnification is present and must not be reported")
	}
	if got := fields[FieldTiltAngle].Detail; got != "Z values 1" {
		t.Errorf("tilt angle detail = %q", got)
	}
	files := fields[FieldFiles]
	if files.Kind != DeficiencyExternalReference || strings.Contains(files.Detail, "a.tif") ||
		!strings.Contains(files.Detail, "b.tif") || !strings.Contains(files.Detail, "c.tif") {
		t.Errorf("unexpected missing files %+v", files)
	}
	for _, label := range []string{KeyExposureDose, KeyFrameDosesAndNumber, KeyDoseRate, KeyExposureTime, KeyMinMaxMean, KeyCountsPerElectron} {
		if !strings.Contains(fields[FieldDose].Detail, label) {
			t.Errorf("dose hint does not mention %s", label)
		}
	}

	report := doc.Report()
	if !strings.Contains(report, path+" is missing:") || !strings.Contains(report, " - Voltage") {
		t.Errorf("unexpected report:\n%s", report)
	}
}

func TestValidationIgnoresFilesWhenAsked(t *testing.T) {
	path := writeMdoc(t, t.TempDir(), "TS_08.mdoc", roundTripMdoc)
	doc, err := New(path, Overrides{}).ParseAndValidate(true, false)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if doc.Valid() {
		t.Fatal("movies do not exist; expected a missing files deficiency")
	}
	if len(doc.Deficiencies()) != 1 || doc.Deficiencies()[0].Field != FieldFiles {
		t.Fatalf("unexpected deficiencies %v", doc.Deficiencies())
	}
}

func TestParseAndValidateSortsByTimestamp(t *testing.T) {
	content := `Voltage = 300
Magnification = 53000
PixelSpacing = 2

[ZValue = 0]
TiltAngle = 3
ExposureDose = 1
SubFramePath = b.tif
DateTime = 30-Nov-21  17:43:00

[ZValue = 1]
TiltAngle = 0
ExposureDose = 2
SubFramePath = a.tif
DateTime = 30-Nov-21  17:42:00
`
	path := writeMdoc(t, t.TempDir(), "TS_09.mdoc", content)
	doc, err := New(path, Overrides{TiltAxisAngle: Float(0)}).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	tilts := doc.GetTiltSliceMetadata()
	if *tilts[0].Angle != 0 || tilts[0].AccumulatedDose != 2 || tilts[1].AccumulatedDose != 3 {
		t.Fatalf("slices not in acquisition order: %+v", tilts)
	}
	if !doc.Valid() {
		t.Fatalf("a zero tilt axis override is a value, got:\n%s", doc.Report())
	}
}

func TestParseAndValidateStack(t *testing.T) {
	content := `Voltage = 300
Magnification = 53000
PixelSpacing = 2
ImageFile = 01.st

[T = TiltAxisAngle = 84.7]

[ZValue = 0]
TiltAngle = 0
ExposureDose = 3

[ZValue = 1]
TiltAngle = -3
ExposureDose = 3

[ZValue = 2]
TiltAngle = 3
ExposureDose = 3
`
	dir := t.TempDir()
	path := writeMdoc(t, dir, "01.st.mdoc", content)

	t.Run("MissingStack", func(t *testing.T) {
		doc, err := New(path, Overrides{}).ParseAndValidate(false, false)
		if err != nil {
			t.Fatalf("ParseAndValidate: %v", err)
		}
		defs := doc.Deficiencies()
		if len(defs) != 1 || defs[0].Field != FieldStackFile || defs[0].Kind != DeficiencyExternalReference {
			t.Fatalf("expected only a missing stack deficiency, got %v", defs)
		}
		if want := filepath.Join(dir, "01.st"); doc.StackFile() != want {
			t.Errorf("stack file = %q, want %q", doc.StackFile(), want)
		}
		if !strings.Contains(doc.Report(), "Mdoc --> "+path) {
			t.Errorf("report does not name the mdoc:\n%s", doc.Report())
		}
		tilts := doc.GetTiltSliceMetadata()
		if *tilts[0].Angle != 0 || tilts[0].StackIndex != 0 {
			t.Errorf("invalid stacks must not be re-sorted: %+v", tilts[0])
		}
	})

	t.Run("SortedByAngle", func(t *testing.T) {
		writeMdoc(t, dir, "01.st", "")
		doc, err := New(path, Overrides{}).ParseAndValidate(false, false)
		if err != nil {
			t.Fatalf("ParseAndValidate: %v", err)
		}
		if !doc.Valid() {
			t.Fatalf("unexpected deficiencies:\n%s", doc.Report())
		}
		if doc.GetTsID() != "TS_01" || !doc.TsPrefixAdded() {
			t.Errorf("tsId = %q prefixed=%v", doc.GetTsID(), doc.TsPrefixAdded())
		}
		tilts := doc.GetTiltSliceMetadata()
		wantAngles := []float64{-3, 0, 3}
		for i, tilt := range tilts {
			if *tilt.Angle != wantAngles[i] || tilt.AcquisitionOrder != i+1 || tilt.StackIndex != i+1 {
				t.Errorf("tilt %d = %+v", i, tilt)
			}
			if tilt.SourceFile != filepath.Join(dir, "01.st") {
				t.Errorf("tilt %d source = %q", i, tilt.SourceFile)
			}
		}
		if tilts[0].AccumulatedDose != 6 {
			t.Errorf("accumulated dose must keep acquisition history, got %v", tilts[0].AccumulatedDose)
		}
	})

	t.Run("FallbackExtensions", func(t *testing.T) {
		other := t.TempDir()
		p := writeMdoc(t, other, "01.st.mdoc", strings.Replace(content, "ImageFile = 01.st\n", "", 1))
		writeMdoc(t, other, "01.mrc", "")
		doc, err := New(p, Overrides{}).ParseAndValidate(false, false)
		if err != nil {
			t.Fatalf("ParseAndValidate: %v", err)
		}
		if doc.StackFile() != filepath.Join(other, "01.mrc") {
			t.Fatalf("stack file = %q", doc.StackFile())
		}
	})

	t.Run("ExplicitStack", func(t *testing.T) {
		stack := writeMdoc(t, t.TempDir(), "given.mrcs", "")
		doc, err := New(path, Overrides{}, WithStackFile(stack)).ParseAndValidate(false, false)
		if err != nil {
			t.Fatalf("ParseAndValidate: %v", err)
		}
		if doc.StackFile() != stack || !doc.Valid() {
			t.Fatalf("explicit stack ignored: %q\n%s", doc.StackFile(), doc.Report())
		}
	})
}

func TestParseAndValidateCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TS_10.mdoc.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write([]byte(roundTripMdoc)); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	doc, err := New(path, Overrides{}).ParseAndValidate(true, true)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if doc.GetTsID() != "TS_10" || len(doc.GetTiltSliceMetadata()) != 2 {
		t.Fatalf("unexpected document %q with %d tilts", doc.GetTsID(), len(doc.GetTiltSliceMetadata()))
	}
}

func TestAngles(t *testing.T) {
	path := writeMdoc(t, t.TempDir(), "TS_11.mdoc", roundTripMdoc)
	angles, err := Angles(path)
	if err != nil {
		t.Fatalf("Angles: %v", err)
	}
	if len(angles) != 2 || angles[0] != 0.01 || angles[1] != 3 {
		t.Fatalf("unexpected angles %v", angles)
	}

	broken := writeMdoc(t, t.TempDir(), "TS_12.mdoc", "[ZValue = 0]\nExposureDose = 1\n")
	if _, err := Angles(broken); !errors.Is(err, ErrMissingTiltAngle) {
		t.Fatalf("expected ErrMissingTiltAngle, got %v", err)
	}
}
