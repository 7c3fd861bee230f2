package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/jobs"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/storage"
)

// sampleSize bounds every list returned in an import response.
const sampleSize = 10

// Store is the persistence the resolver needs. repository.ClientRepository satisfies it.
type Store interface {
	ExistingTradingCodes(ctx context.Context, codes []string) (map[string]bool, error)
	Create(ctx context.Context, client *models.Client) error
	CreateBatch(ctx context.Context, clients []*models.Client) error
	UpdateByTradingCode(ctx context.Context, code string, fields map[string]interface{}) error
}

// FileStore holds temp uploads and duplicate reports. storage.LocalStorage satisfies it.
type FileStore interface {
	Remove(path string) error
	WriteDuplicateFile(headers []string, rows [][]string, now time.Time) (*storage.DuplicateFile, error)
	DeleteDuplicate(name string) error
}

// Runner schedules detached work. jobs.Worker satisfies it.
type Runner interface {
	EnqueueAsync(name string, job jobs.Job)
	ScheduleAt(name string, at time.Time, job jobs.Job)
}

// RowFailure describes one row that could not be persisted.
type RowFailure struct {
	TradingCode string `json:"tradingCode"`
	Error       string `json:"error"`
	Action      string `json:"action,omitempty"`
}

// InsertResult summarises an insert-only import.
type InsertResult struct {
	NewRecords        int
	Clients           []*models.Client
	DuplicatesSkipped int
	SkippedCodes      []string
	DuplicateFile     *storage.DuplicateFile
	Failed            int
	Failures          []RowFailure
}

// UpsertResult summarises an update-or-insert import.
type UpsertResult struct {
	Updated          int
	UpdatedCodes     []string
	Inserted         int
	InsertedClients  []*models.Client
	DuplicatesInFile int
	Failed           int
	Failures         []RowFailure
}

// Resolver partitions parsed rows against stored clients and persists them in
// sequential batches.
type Resolver struct {
	store        Store
	files        FileStore
	runner       Runner
	batchSize    int
	duplicateTTL time.Duration
	now          func() time.Time
}

// NewResolver creates a resolver. A non-positive batch size falls back to 100.
func NewResolver(store Store, files FileStore, runner Runner, batchSize int, duplicateTTL time.Duration) *Resolver {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Resolver{
		store:        store,
		files:        files,
		runner:       runner,
		batchSize:    batchSize,
		duplicateTTL: duplicateTTL,
		now:          time.Now,
	}
}

// Insert stores rows whose trading code is new and skips the rest. A code seen
// earlier in the same sheet counts as existing. When report is set, skipped
// rows are written to a downloadable duplicate file.
func (r *Resolver) Insert(ctx context.Context, sheet *Sheet, uploadedBy *uint, report bool, log *slog.Logger) (*InsertResult, error) {
	existing, err := r.store.ExistingTradingCodes(ctx, sheet.Keys())
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing = make(map[string]bool)
	}

	res := &InsertResult{}
	var fresh []columns.Row
	var duplicates [][]string
	for _, row := range sheet.Rows {
		key := row.Key()
		if existing[key] {
			res.DuplicatesSkipped++
			if len(res.SkippedCodes) < sampleSize {
				res.SkippedCodes = append(res.SkippedCodes, key)
			}
			duplicates = append(duplicates, row.Raw)
			continue
		}
		existing[key] = true
		fresh = append(fresh, row)
	}
	log.Info("Import rows partitioned", slog.Int("new", len(fresh)), slog.Int("duplicates", res.DuplicatesSkipped))

	if report && len(duplicates) > 0 {
		res.DuplicateFile = r.writeDuplicates(sheet.Layout.Headers, duplicates, log)
	}

	batch := r.insertRows(ctx, fresh, uploadedBy, "", log)
	res.NewRecords = batch.count
	res.Clients = batch.sample
	res.Failed = batch.failed
	res.Failures = batch.failures
	return res, ctx.Err()
}

// Upsert updates rows whose trading code exists, writing only the columns the
// sheet carries, and inserts the rest. Repeats of a code within the sheet are
// counted and skipped.
func (r *Resolver) Upsert(ctx context.Context, sheet *Sheet, uploadedBy *uint, log *slog.Logger) (*UpsertResult, error) {
	existing, err := r.store.ExistingTradingCodes(ctx, sheet.Keys())
	if err != nil {
		return nil, err
	}

	res := &UpsertResult{}
	seen := make(map[string]bool, len(sheet.Rows))
	var updates, inserts []columns.Row
	for _, row := range sheet.Rows {
		key := row.Key()
		if seen[key] {
			res.DuplicatesInFile++
			continue
		}
		seen[key] = true
		if existing[key] {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}
	log.Info("Import rows partitioned",
		slog.Int("update", len(updates)),
		slog.Int("insert", len(inserts)),
		slog.Int("duplicates_in_file", res.DuplicatesInFile))

	var failures failureSample
	for start := 0; start < len(updates); start += r.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+r.batchSize, len(updates))
		for _, row := range updates[start:end] {
			if err := r.store.UpdateByTradingCode(ctx, row.Key(), updateColumns(row, r.now())); err != nil {
				log.Warn("Import row update failed", slog.String("trading_code", row.Key()), slog.String("error", err.Error()))
				failures.add(RowFailure{TradingCode: row.Key(), Error: rowError(err), Action: "update"})
				continue
			}
			res.Updated++
			if len(res.UpdatedCodes) < sampleSize {
				res.UpdatedCodes = append(res.UpdatedCodes, row.Key())
			}
		}
		log.Debug("Import update batch done", slog.Int("batch", start/r.batchSize+1), slog.Int("rows", end-start))
	}

	batch := r.insertRows(ctx, inserts, uploadedBy, "insert", log)
	res.Inserted = batch.count
	res.InsertedClients = batch.sample
	failures.merge(batch.failureSample)
	res.Failed = failures.failed
	res.Failures = failures.failures
	return res, ctx.Err()
}

type failureSample struct {
	failed   int
	failures []RowFailure
}

func (f *failureSample) add(rf RowFailure) {
	f.failed++
	if len(f.failures) < sampleSize {
		f.failures = append(f.failures, rf)
	}
}

func (f *failureSample) merge(o failureSample) {
	f.failed += o.failed
	for _, rf := range o.failures {
		if len(f.failures) >= sampleSize {
			break
		}
		f.failures = append(f.failures, rf)
	}
}

type insertOutcome struct {
	count  int
	sample []*models.Client
	failureSample
}

// insertRows persists rows in sequential batches. A batch that fails as a
// whole is retried row by row so one bad row does not sink its neighbours.
func (r *Resolver) insertRows(ctx context.Context, rows []columns.Row, uploadedBy *uint, action string, log *slog.Logger) insertOutcome {
	var out insertOutcome
	now := r.now()

	keep := func(c *models.Client) {
		out.count++
		if len(out.sample) < sampleSize {
			out.sample = append(out.sample, c)
		}
	}

	for start := 0; start < len(rows); start += r.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+r.batchSize, len(rows))
		batch := make([]*models.Client, 0, end-start)
		for _, row := range rows[start:end] {
			batch = append(batch, models.NewClient(row.Values, uploadedBy, now))
		}

		err := r.store.CreateBatch(ctx, batch)
		if err == nil {
			for _, c := range batch {
				keep(c)
			}
			log.Debug("Import insert batch done", slog.Int("batch", start/r.batchSize+1), slog.Int("rows", len(batch)))
			continue
		}

		log.Warn("Import batch insert failed, retrying row by row",
			slog.Int("batch", start/r.batchSize+1),
			slog.String("error", err.Error()))
		for _, c := range batch {
			c.ID = 0
			if err := r.store.Create(ctx, c); err != nil {
				log.Warn("Import row insert failed", slog.String("trading_code", c.TradingCode), slog.String("error", err.Error()))
				out.add(RowFailure{TradingCode: c.TradingCode, Error: rowError(err), Action: action})
				continue
			}
			keep(c)
		}
	}
	return out
}

// writeDuplicates stores the skipped rows and schedules the report's removal
// in case it is never downloaded. Failures only cost the report.
func (r *Resolver) writeDuplicates(headers []string, rows [][]string, log *slog.Logger) *storage.DuplicateFile {
	file, err := r.files.WriteDuplicateFile(headers, rows, r.now())
	if err != nil {
		log.Warn("Failed to write duplicate file", slog.String("error", err.Error()))
		return nil
	}
	if r.runner != nil && r.duplicateTTL > 0 {
		name := file.Name
		r.runner.ScheduleAt("expire:"+name, r.now().Add(r.duplicateTTL), func(ctx context.Context) error {
			return r.files.DeleteDuplicate(name)
		})
	}
	return file
}

// updateColumns maps the sheet's present cells, blanks included, onto columns.
func updateColumns(row columns.Row, now time.Time) map[string]interface{} {
	fields := make(map[string]interface{}, len(row.Cells)+1)
	for key, value := range row.Cells {
		if key == columns.KeyField {
			continue
		}
		if info, ok := models.LookupField(key); ok {
			fields[info.Column] = value
		}
	}
	fields["last_modified"] = now
	return fields
}

func rowError(err error) string {
	if errors.Is(err, repository.ErrDuplicateKey) {
		return "duplicate key"
	}
	return err.Error()
}
