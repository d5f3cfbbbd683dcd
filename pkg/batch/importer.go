// Package batch imports many mdoc files at once, one tilt series per file,
// and reports which of them had to be skipped.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tomoimport/internal/logging"
	"tomoimport/pkg/mdoc"
)

// Params holds the import parameters shared by every file of a batch.
type Params struct {
	// Overrides are the user supplied acquisition values
	Overrides mdoc.Overrides

	// Movies selects per-tilt movies (true) or stacked tilt series (false)
	Movies bool

	// IgnoreFileValidation skips the per-tilt file existence check
	IgnoreFileValidation bool

	// AllowIncomplete keeps documents that have validation deficiencies
	AllowIncomplete bool

	// NumWorkers is how many files are parsed in parallel
	NumWorkers int

	// StackFile forces the stack of a stacked import
	StackFile string

	// Logger receives progress events. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Outcome is the result of importing a single mdoc file.
type Outcome struct {
	// File is the mdoc path as given
	File string

	// Document is nil when the file could not be parsed
	Document *mdoc.Document

	// Err is the fatal parse error, if any
	Err error

	// Skipped is set when the tilt series must not be imported
	Skipped bool

	// Reason is the human-readable diagnosis for a skipped file
	Reason string
}

// Result collects the outcomes of a batch, in input order.
type Result struct {
	RunID    string
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Imported returns the documents that were not skipped.
func (r *Result) Imported() []*mdoc.Document {
	var docs []*mdoc.Document
	for _, o := range r.Outcomes {
		if !o.Skipped && o.Document != nil {
			docs = append(docs, o.Document)
		}
	}
	return docs
}

// SkippedCount returns how many files were skipped.
func (r *Result) SkippedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}

// Summary renders "M of N mdocs were skipped" followed by every reason, or
// "" when nothing was skipped.
func (r *Result) Summary() string {
	skipped := r.SkippedCount()
	if skipped == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d mdocs were skipped:\n", skipped, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Skipped {
			b.WriteString(strings.TrimRight(o.Reason, "\n"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Importer runs a batch import.
type Importer struct {
	params *Params
	logger *slog.Logger
}

// NewImporter creates an importer with the provided parameters.
func NewImporter(params *Params) *Importer {
	p := *params
	if p.NumWorkers <= 0 {
		p.NumWorkers = runtime.NumCPU()
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{params: &p, logger: logger}
}

// Import parses every file on a bounded pool of workers. Cancellation is only
// observed between files; a file that was not started is reported as skipped
// and the context error is returned along with the partial result.
func (im *Importer) Import(ctx context.Context, files []string) (*Result, error) {
	runID := uuid.NewString()
	logger := im.logger.With(slog.String("run_id", runID))
	start := time.Now()
	logger.Info("batch import started", slog.Int("files", len(files)), slog.Int("workers", im.params.NumWorkers))

	type job struct {
		index int
		file  string
	}
	jobs := make(chan job)
	outcomes := make([]Outcome, len(files))

	var wg sync.WaitGroup
	for w := 0; w < im.params.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes[j.index] = Outcome{File: j.file, Err: err, Skipped: true, Reason: fmt.Sprintf("%s: %v", j.file, err)}
					continue
				}
				outcomes[j.index] = im.importOne(logger, j.file)
			}
		}()
	}

	for i, f := range files {
		jobs <- job{index: i, file: f}
	}
	close(jobs)
	wg.Wait()

	markDuplicateTsIDs(outcomes)

	result := &Result{RunID: runID, Outcomes: outcomes, Elapsed: time.Since(start)}
	logger.Info("batch import finished",
		slog.Int("files", len(files)),
		slog.Int("skipped", result.SkippedCount()),
		slog.Duration("elapsed", result.Elapsed),
	)
	return result, ctx.Err()
}

func (im *Importer) importOne(logger *slog.Logger, file string) Outcome {
	opts := []mdoc.Option{mdoc.WithLogger(logger)}
	if im.params.StackFile != "" {
		opts = append(opts, mdoc.WithStackFile(im.params.StackFile))
	}
	doc, err := mdoc.New(file, im.params.Overrides, opts...).ParseAndValidate(im.params.Movies, im.params.IgnoreFileValidation)

	out := Outcome{File: file, Document: doc, Err: err}
	switch {
	case err != nil:
		out.Skipped = true
		out.Reason = mdoc.Diagnose(nil, err)
		logger.Warn("mdoc skipped", slog.String("file", file), slog.String("error", err.Error()))
	case !doc.Valid() && !im.params.AllowIncomplete:
		out.Skipped = true
		out.Reason = doc.Report()
		logger.Warn("mdoc skipped", slog.String("file", file), slog.Int("deficiencies", len(doc.Deficiencies())))
	default:
		logger.Debug("mdoc imported", slog.String("file", file), slog.String("ts_id", doc.GetTsID()))
	}
	return out
}

// markDuplicateTsIDs skips every later file whose tsId was already taken,
// since the id names the tilt series downstream.
func markDuplicateTsIDs(outcomes []Outcome) {
	seen := make(map[string]string)
	for i := range outcomes {
		o := &outcomes[i]
		if o.Skipped || o.Document == nil {
			continue
		}
		id := o.Document.GetTsID()
		if first, ok := seen[id]; ok {
			o.Skipped = true
			o.Reason = fmt.Sprintf("%s: tilt series id %s is already used by %s\n", o.File, id, first)
			continue
		}
		seen[id] = o.File
	}
}
