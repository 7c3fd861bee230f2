package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/metrics"
	"github.com/sjperalta/crm-api/internal/statemachine"
	"github.com/sjperalta/crm-api/pkg/logger"
)

// Mode selects how rows with an existing trading code are handled.
type Mode string

const (
	ModeInsert Mode = "insert"
	ModeUpsert Mode = "upsert"
)

// Options tunes the pipeline.
type Options struct {
	// SyncThreshold is the largest row count resolved inside the request.
	SyncThreshold int
	BatchSize     int
	DuplicateTTL  time.Duration
}

// Request describes one upload.
type Request struct {
	Mode       Mode
	UploadedBy *uint
}

// Outcome is what an import produced by the time the caller gets control back.
// Exactly one of Insert and Upsert is set unless Background is true.
type Outcome struct {
	ID         string
	Mode       Mode
	Layout     *columns.Layout
	TotalRows  int
	Background bool
	Insert     *InsertResult
	Upsert     *UpsertResult
}

// Pipeline parses an uploaded CSV and routes it to synchronous or background
// resolution depending on volume.
type Pipeline struct {
	mapper   *columns.Mapper
	resolver *Resolver
	files    FileStore
	runner   Runner
	opts     Options
}

// NewPipeline wires a pipeline over the client store, file storage and worker.
func NewPipeline(mapper *columns.Mapper, store Store, files FileStore, runner Runner, opts Options) *Pipeline {
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = 1000
	}
	return &Pipeline{
		mapper:   mapper,
		resolver: NewResolver(store, files, runner, opts.BatchSize, opts.DuplicateTTL),
		files:    files,
		runner:   runner,
		opts:     opts,
	}
}

// Run imports the CSV at path. The file is removed once parsing ends, whatever
// the result. Sheets above the sync threshold are handed to the worker and Run
// returns immediately with Background set.
func (p *Pipeline) Run(ctx context.Context, path string, req Request) (*Outcome, error) {
	id := uuid.NewString()[:8]
	mode := string(req.Mode)
	log := logger.With(slog.String("import_id", id), slog.String("mode", mode))
	session := statemachine.NewImportFSM()

	sheet, err := p.parseFile(ctx, path, session, log)
	if err != nil {
		outcome := "error"
		if IsRejection(err) {
			outcome = "rejected"
		}
		metrics.ImportsTotal.WithLabelValues(mode, outcome).Inc()
		log.Warn("Import rejected", slog.String("error", err.Error()), slog.String("state", session.Current()))
		return nil, err
	}

	out := &Outcome{
		ID:        id,
		Mode:      req.Mode,
		Layout:    sheet.Layout,
		TotalRows: len(sheet.Rows),
	}
	metrics.ImportRowsTotal.WithLabelValues(mode, "invalid").Add(float64(sheet.Skipped))
	log.Info("CSV parsed",
		slog.Int("rows", len(sheet.Rows)),
		slog.Int("skipped", sheet.Skipped),
		slog.Int("detected_columns", len(sheet.Layout.Detected)),
		slog.Int("extra_columns", len(sheet.Layout.Extra)))

	if len(sheet.Rows) > p.opts.SyncThreshold {
		if err := session.ProcessBackground(ctx); err != nil {
			return nil, err
		}
		p.runner.EnqueueAsync("import:"+id, func(jobCtx context.Context) error {
			_, _, err := p.resolve(jobCtx, sheet, req, "background", log)
			return err
		})
		out.Background = true
		return out, session.Respond(ctx)
	}

	if err := session.ProcessSync(ctx); err != nil {
		return nil, err
	}
	out.Insert, out.Upsert, err = p.resolve(ctx, sheet, req, "sync", log)
	if err != nil {
		session.Fail(ctx)
		return nil, err
	}
	return out, session.Respond(ctx)
}

func (p *Pipeline) parseFile(ctx context.Context, path string, session *statemachine.ImportFSM, log *slog.Logger) (*Sheet, error) {
	defer func() {
		if err := p.files.Remove(path); err != nil {
			log.Warn("Failed to remove temp upload", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		session.Fail(ctx)
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return Parse(ctx, f, p.mapper, session)
}

// resolve runs the resolver for the request mode, records metrics and logs
// the summary.
func (p *Pipeline) resolve(ctx context.Context, sheet *Sheet, req Request, processing string, log *slog.Logger) (*InsertResult, *UpsertResult, error) {
	mode := string(req.Mode)
	start := time.Now()
	metrics.ImportsInFlight.Inc()
	defer metrics.ImportsInFlight.Dec()
	defer func() {
		metrics.ImportDuration.WithLabelValues(mode, processing).Observe(time.Since(start).Seconds())
	}()

	var (
		ins *InsertResult
		ups *UpsertResult
		err error
	)
	switch req.Mode {
	case ModeUpsert:
		ups, err = p.resolver.Upsert(ctx, sheet, req.UploadedBy, log)
	default:
		ins, err = p.resolver.Insert(ctx, sheet, req.UploadedBy, processing == "sync", log)
	}
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(mode, "error").Inc()
		log.Error("Import failed", slog.String("processing", processing), slog.String("error", err.Error()))
		return nil, nil, err
	}

	metrics.ImportsTotal.WithLabelValues(mode, "completed").Inc()
	if ins != nil {
		metrics.ImportRowsTotal.WithLabelValues(mode, "inserted").Add(float64(ins.NewRecords))
		metrics.ImportRowsTotal.WithLabelValues(mode, "duplicate").Add(float64(ins.DuplicatesSkipped))
		metrics.ImportRowsTotal.WithLabelValues(mode, "failed").Add(float64(ins.Failed))
		log.Info("Import complete",
			slog.String("processing", processing),
			slog.Int("inserted", ins.NewRecords),
			slog.Int("duplicates", ins.DuplicatesSkipped),
			slog.Int("failed", ins.Failed),
			slog.Duration("elapsed", time.Since(start)))
	}
	if ups != nil {
		metrics.ImportRowsTotal.WithLabelValues(mode, "updated").Add(float64(ups.Updated))
		metrics.ImportRowsTotal.WithLabelValues(mode, "inserted").Add(float64(ups.Inserted))
		metrics.ImportRowsTotal.WithLabelValues(mode, "duplicate").Add(float64(ups.DuplicatesInFile))
		metrics.ImportRowsTotal.WithLabelValues(mode, "failed").Add(float64(ups.Failed))
		log.Info("Import complete",
			slog.String("processing", processing),
			slog.Int("updated", ups.Updated),
			slog.Int("inserted", ups.Inserted),
			slog.Int("duplicates_in_file", ups.DuplicatesInFile),
			slog.Int("failed", ups.Failed),
			slog.Duration("elapsed", time.Since(start)))
	}
	return ins, ups, nil
}
