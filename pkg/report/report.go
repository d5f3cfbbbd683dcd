// Package report renders mdoc documents and batch outcomes for people
// (tables) and for tools (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tomoimport/pkg/batch"
	"tomoimport/pkg/mdoc"
)

// Stats summarizes the tilts of one document.
type Stats struct {
	Tilts         int     `json:"tilts"`
	MissingAngles int     `json:"missingAngles"`
	MinAngle      float64 `json:"minAngle"`
	MaxAngle      float64 `json:"maxAngle"`
	AngleStep     float64 `json:"angleStep"`
	MeanDose      float64 `json:"meanDose"`
	TotalDose     float64 `json:"totalDose"`
}

// Summarize computes angle range, mean angular step and dose statistics.
// Angle fields stay zero when no tilt has an angle.
func Summarize(doc *mdoc.Document) Stats {
	tilts := doc.GetTiltSliceMetadata()
	s := Stats{Tilts: len(tilts), TotalDose: doc.AccumulatedDose()}
	if len(tilts) == 0 {
		return s
	}

	angles := make([]float64, 0, len(tilts))
	doses := make([]float64, len(tilts))
	for i, t := range tilts {
		doses[i] = t.IncomingDose
		if t.Angle == nil {
			s.MissingAngles++
			continue
		}
		angles = append(angles, *t.Angle)
	}
	s.MeanDose = stat.Mean(doses, nil)

	if len(angles) > 0 {
		s.MinAngle = floats.Min(angles)
		s.MaxAngle = floats.Max(angles)
	}
	if len(angles) > 1 {
		sort.Float64s(angles)
		steps := make([]float64, len(angles)-1)
		for i := range steps {
			steps[i] = angles[i+1] - angles[i]
		}
		s.AngleStep = stat.Mean(steps, nil)
	}
	return s
}

// DocumentTable renders the acquisition values of doc followed by one row
// per tilt in final order.
func DocumentTable(doc *mdoc.Document) string {
	var b strings.Builder

	stats := Summarize(doc)
	rows := [][]string{
		{"File", doc.GetFileName()},
		{"Tilt series", doc.GetTsID()},
		{"Voltage (kV)", optional(doc.GetVoltage())},
		{"Magnification", optional(doc.GetMagnification())},
		{"Pixel size (Å/px)", optional(doc.GetSamplingRate())},
		{"Tilt axis angle (°)", optional(doc.GetTiltAxisAngle())},
		{"Tilts", strconv.Itoa(stats.Tilts)},
		{"Angle range (°)", angleRange(stats)},
		{"Total dose (e-/Å²)", formatFloat(stats.TotalDose)},
	}
	if stack := doc.StackFile(); stack != "" {
		rows = append(rows, []string{"Stack", stack})
	}
	for _, title := range doc.Titles() {
		rows = append(rows, []string{"Title", titleText(title)})
	}
	b.WriteString(renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
	b.WriteString("\n")

	tilts := doc.GetTiltSliceMetadata()
	tiltRows := make([][]string, len(tilts))
	for i, t := range tilts {
		angle := "-"
		if t.Angle != nil {
			angle = formatFloat(*t.Angle)
		}
		index := ""
		if t.StackIndex > 0 {
			index = strconv.Itoa(t.StackIndex)
		}
		tiltRows[i] = []string{
			strconv.Itoa(t.AcquisitionOrder),
			angle,
			formatFloat(t.IncomingDose),
			formatFloat(t.AccumulatedDose),
			filepath.Base(t.SourceFile),
			index,
		}
	}
	b.WriteString(renderTable(
		[]string{"Order", "Angle", "Dose", "Accumulated", "Source", "Index"},
		tiltRows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight},
	))
	b.WriteString("\n")

	if report := doc.Report(); report != "" {
		b.WriteString(report)
	}
	return b.String()
}

// BatchTable renders one row per batch outcome.
func BatchTable(result *batch.Result) string {
	rows := make([][]string, len(result.Outcomes))
	for i, o := range result.Outcomes {
		status := "imported"
		switch {
		case o.Err != nil:
			status = "failed"
		case o.Skipped:
			status = "skipped"
		case o.Document != nil && !o.Document.Valid():
			status = "incomplete"
		}
		tsID, tilts, dose := "-", "-", "-"
		if o.Document != nil {
			tsID = o.Document.GetTsID()
			tilts = strconv.Itoa(len(o.Document.GetTiltSliceMetadata()))
			dose = formatFloat(o.Document.AccumulatedDose())
		}
		rows[i] = []string{o.File, tsID, status, tilts, dose}
	}
	return renderTable(
		[]string{"Mdoc", "Tilt series", "Status", "Tilts", "Dose"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

// TiltJSON is the JSON form of mdoc.TiltSliceMetadata.
type TiltJSON struct {
	Angle            *float64 `json:"angle"`
	SourceFile       string   `json:"sourceFile"`
	StackIndex       int      `json:"stackIndex,omitempty"`
	AcquisitionOrder int      `json:"acquisitionOrder"`
	IncomingDose     float64  `json:"incomingDose"`
	AccumulatedDose  float64  `json:"accumulatedDose"`
}

// DocumentJSON is the JSON form of an mdoc.Document.
type DocumentJSON struct {
	File          string     `json:"file"`
	TsID          string     `json:"tsId"`
	Voltage       *float64   `json:"voltage"`
	Magnification *float64   `json:"magnification"`
	SamplingRate  *float64   `json:"samplingRate"`
	TiltAxisAngle *float64   `json:"tiltAxisAngle"`
	HasDose       bool       `json:"hasDose"`
	StackFile     string     `json:"stackFile,omitempty"`
	Titles        []string   `json:"titles,omitempty"`
	Stats         Stats      `json:"stats"`
	Tilts         []TiltJSON `json:"tilts"`
	Deficiencies  []string   `json:"deficiencies,omitempty"`
}

// OutcomeJSON is the JSON form of a batch.Outcome.
type OutcomeJSON struct {
	File     string        `json:"file"`
	Skipped  bool          `json:"skipped"`
	Reason   string        `json:"reason,omitempty"`
	Document *DocumentJSON `json:"document,omitempty"`
}

// BatchJSON is the JSON form of a batch.Result.
type BatchJSON struct {
	RunID    string        `json:"runId"`
	Skipped  int           `json:"skipped"`
	Total    int           `json:"total"`
	Outcomes []OutcomeJSON `json:"outcomes"`
}

// NewDocumentJSON converts doc for encoding.
func NewDocumentJSON(doc *mdoc.Document) DocumentJSON {
	out := DocumentJSON{
		File:          doc.GetFileName(),
		TsID:          doc.GetTsID(),
		Voltage:       pointer(doc.GetVoltage()),
		Magnification: pointer(doc.GetMagnification()),
		SamplingRate:  pointer(doc.GetSamplingRate()),
		TiltAxisAngle: pointer(doc.GetTiltAxisAngle()),
		HasDose:       doc.HasDose(),
		StackFile:     doc.StackFile(),
		Titles:        doc.Titles(),
		Stats:         Summarize(doc),
	}
	for _, t := range doc.GetTiltSliceMetadata() {
		out.Tilts = append(out.Tilts, TiltJSON{
			Angle:            t.Angle,
			SourceFile:       t.SourceFile,
			StackIndex:       t.StackIndex,
			AcquisitionOrder: t.AcquisitionOrder,
			IncomingDose:     t.IncomingDose,
			AccumulatedDose:  t.AccumulatedDose,
		})
	}
	for _, d := range doc.Deficiencies() {
		out.Deficiencies = append(out.Deficiencies, d.String())
	}
	return out
}

// WriteBatchJSON encodes result as indented JSON.
func WriteBatchJSON(w io.Writer, result *batch.Result) error {
	out := BatchJSON{
		RunID:   result.RunID,
		Skipped: result.SkippedCount(),
		Total:   len(result.Outcomes),
	}
	for _, o := range result.Outcomes {
		oj := OutcomeJSON{File: o.File, Skipped: o.Skipped, Reason: o.Reason}
		if o.Document != nil {
			d := NewDocumentJSON(o.Document)
			oj.Document = &d
		}
		out.Outcomes = append(out.Outcomes, oj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode batch result: %w", err)
	}
	return nil
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// titleText strips the "[T =" and "]" framing of a title line.
func titleText(line string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	if _, text, ok := strings.Cut(inner, "="); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(inner)
}

func angleRange(s Stats) string {
	if s.Tilts == s.MissingAngles {
		return "-"
	}
	return fmt.Sprintf("%s .. %s", formatFloat(s.MinAngle), formatFloat(s.MaxAngle))
}

func optional(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return formatFloat(v)
}

func pointer(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
