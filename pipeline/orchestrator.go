// Package pipeline runs one curation pass: fetch, filter, VIN check, store,
// audit log. Each stage is isolated so a failure is recorded against the
// stage that caused it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"autocurator/filters"
	"autocurator/identity"
	"autocurator/models"
	"autocurator/services"
	"autocurator/sources"
	"autocurator/storage"
	"autocurator/vin"
)

type Stage string

const (
	StageFetch   Stage = "fetch"
	StageArchive Stage = "archive"
	StageFilter  Stage = "filter"
	StageVIN     Stage = "vin"
	StageStore   Stage = "store"
	StageLog     Stage = "log"
)

// StageError is a failure attributed to one stage. Fatal errors end the run.
type StageError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Verifier checks listing identity against the VIN service.
type Verifier interface {
	ValidateBatch(ctx context.Context, listings []*models.RawListing) (vin.BatchResult, error)
}

// Archiver keeps a copy of each fetched batch.
type Archiver interface {
	ArchiveBatch(ctx context.Context, source, runID string, listings []models.RawListing) (string, error)
}

type Option func(*Orchestrator)

func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type Orchestrator struct {
	source   sources.Source
	store    storage.Store
	verifier Verifier
	archiver Archiver
	criteria filters.Criteria
	now      func() time.Time
}

func New(src sources.Source, store storage.Store, verifier Verifier, criteria filters.Criteria, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:   src,
		store:    store,
		verifier: verifier,
		criteria: criteria.Clone(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result always carries the stats block, even for aborted runs, so callers
// can tell an empty run from an early abort by which counts are populated.
type Result struct {
	RunID      string          `json:"run_id"`
	Source     string          `json:"source"`
	Success    bool            `json:"success"`
	Stats      models.RunStats `json:"stats"`
	Rejections map[string]int  `json:"rejections,omitempty"`
	Stored     []string        `json:"stored_vins,omitempty"`
	Errors     []StageError    `json:"errors,omitempty"`
	ArchiveKey string          `json:"archive_key,omitempty"`
	LogID      int64           `json:"log_id,omitempty"`
}

func (r *Result) fail(stage Stage, fatal bool, format string, args ...any) {
	r.Errors = append(r.Errors, StageError{Stage: stage, Message: fmt.Sprintf(format, args...), Fatal: fatal})
}

func (r *Result) fatal() bool {
	for _, e := range r.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// verified is a listing that cleared the VIN stage.
type verified struct {
	listing *models.RawListing
	filter  filters.Result
	decoded *vin.DecodeResult
}

// Run executes one pass. It never returns an error: failures are recorded
// in the result and the audit log.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Source: o.source.ID()}
	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("source", res.Source))
	log.Info("pipeline run started")

	defer func() {
		res.Success = !res.fatal()
		res.Stats.Duration = time.Since(start)
		o.writeLog(ctx, res)
		log.Info("pipeline run finished",
			zap.Bool("success", res.Success),
			zap.Int("fetched", res.Stats.Fetched),
			zap.Int("after_filter", res.Stats.AfterBasicFilter),
			zap.Int("after_vin", res.Stats.AfterVINValidation),
			zap.Int("stored", res.Stats.Stored),
			zap.Int("duplicates", res.Stats.Duplicates),
			zap.Int("errors", len(res.Errors)),
			zap.Duration("duration", res.Stats.Duration),
		)
	}()

	listings, ok := o.fetch(ctx, res)
	if !ok {
		return res
	}

	o.archive(ctx, res, listings)

	filtered, ok := o.filter(res, listings)
	if !ok {
		return res
	}

	valid := o.verify(ctx, res, filtered)

	o.storeAll(ctx, res, valid)
	return res
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (o *Orchestrator) fetch(ctx context.Context, res *Result) ([]models.RawListing, bool) {
	var listings []models.RawListing
	err := guard(func() error {
		var err error
		listings, err = o.source.Fetch(ctx)
		return err
	})
	res.Stats.APICost += o.source.Cost()
	if err != nil {
		res.fail(StageFetch, true, "%v", err)
		zap.L().Error("pipeline: fetch failed", zap.String("run_id", res.RunID), zap.Error(err))
		return nil, false
	}
	res.Stats.Fetched = len(listings)
	return listings, true
}

func (o *Orchestrator) archive(ctx context.Context, res *Result, listings []models.RawListing) {
	if o.archiver == nil {
		return
	}
	err := guard(func() error {
		key, err := o.archiver.ArchiveBatch(ctx, res.Source, res.RunID, listings)
		res.ArchiveKey = key
		return err
	})
	if err != nil {
		res.fail(StageArchive, false, "%v", err)
		zap.L().Warn("pipeline: archive failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

func (o *Orchestrator) filter(res *Result, listings []models.RawListing) ([]filters.Filtered, bool) {
	var filtered []filters.Filtered
	err := guard(func() error {
		filtered = filters.FilterListings(listings, o.criteria)
		stats := filters.GetFilterStats(listings, o.criteria)
		res.Rejections = stats.RejectionReasons
		return nil
	})
	if err != nil {
		res.fail(StageFilter, true, "%v", err)
		zap.L().Error("pipeline: filter failed", zap.String("run_id", res.RunID), zap.Error(err))
		return nil, false
	}
	res.Stats.AfterBasicFilter = len(filtered)
	return filtered, true
}

// verify keeps listings whose VIN decodes to the claimed identity. When the
// VIN stage fails part way (service down, cancelled, panic), listings already
// judged keep their verdict and every remaining listing that has a VIN is
// kept unverified. The run records the degradation.
func (o *Orchestrator) verify(ctx context.Context, res *Result, filtered []filters.Filtered) []verified {
	ptrs := make([]*models.RawListing, len(filtered))
	for i := range filtered {
		ptrs[i] = &filtered[i].Listing
	}

	var batch vin.BatchResult
	err := guard(func() error {
		var err error
		batch, err = o.verifier.ValidateBatch(ctx, ptrs)
		return err
	})

	judged := len(batch.Outcomes)
	if judged > len(filtered) {
		judged = len(filtered)
	}

	var out []verified
	for i := 0; i < judged; i++ {
		outcome := batch.Outcomes[i]
		if !outcome.Valid() {
			zap.L().Info("pipeline: VIN rejected listing",
				zap.String("listing", outcome.Listing.Label()),
				zap.String("reason", outcome.Verification.Reason()),
			)
			continue
		}
		decoded := outcome.Verification.Decode
		out = append(out, verified{listing: &filtered[i].Listing, filter: filtered[i].Result, decoded: &decoded})
	}

	if err != nil {
		remaining := len(filtered) - judged
		res.Stats.VINDegraded = true
		res.fail(StageVIN, false, "VIN validation failed after %d of %d filtered listings, treating the remaining %d as valid: %v",
			judged, len(filtered), remaining, err)
		zap.L().Warn("pipeline: VIN stage degraded", zap.String("run_id", res.RunID), zap.Int("unverified", remaining), zap.Error(err))
		for i := judged; i < len(filtered); i++ {
			if filtered[i].Listing.VIN == "" {
				continue
			}
			out = append(out, verified{listing: &filtered[i].Listing, filter: filtered[i].Result})
		}
	}

	res.Stats.AfterVINValidation = len(out)
	return out
}

func (o *Orchestrator) storeAll(ctx context.Context, res *Result, items []verified) {
	err := guard(func() error {
		seen := make(map[string]bool, len(items))
		for _, it := range items {
			o.storeOne(ctx, res, it, seen)
		}
		return nil
	})
	if err != nil {
		res.fail(StageStore, true, "%v", err)
		zap.L().Error("pipeline: store stage crashed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

func (o *Orchestrator) storeOne(ctx context.Context, res *Result, it verified, seen map[string]bool) {
	key := identity.NormalizeVIN(it.listing.VIN)
	if seen[key] {
		res.Stats.Duplicates++
		return
	}
	seen[key] = true

	exists, err := o.store.Exists(ctx, key)
	if err != nil {
		res.Stats.StoreErrors++
		res.fail(StageStore, false, "check %s: %v", key, err)
		return
	}
	if exists {
		res.Stats.Duplicates++
		return
	}

	v := services.BuildVehicle(it.listing, it.filter, it.decoded, o.criteria, o.now())
	if _, err := o.store.Insert(ctx, v); err != nil {
		if eris.Is(err, storage.ErrDuplicate) {
			res.Stats.Duplicates++
			return
		}
		res.Stats.StoreErrors++
		res.fail(StageStore, false, "insert %s: %v", key, err)
		return
	}

	res.Stats.Stored++
	res.Stored = append(res.Stored, key)
}

const logWriteTimeout = 10 * time.Second

// writeLog records the run. Failures only reach the process log.
func (o *Orchestrator) writeLog(ctx context.Context, res *Result) {
	details, err := json.Marshal(res.Errors)
	if err != nil || res.Errors == nil {
		details = json.RawMessage("[]")
	}

	entry := &models.SearchLog{
		RunID:              res.RunID,
		Source:             res.Source,
		Success:            res.Success,
		ListingsFetched:    res.Stats.Fetched,
		AfterBasicFilter:   res.Stats.AfterBasicFilter,
		AfterVINValidation: res.Stats.AfterVINValidation,
		FinalStored:        res.Stats.Stored,
		Duplicates:         res.Stats.Duplicates,
		APICost:            res.Stats.APICost,
		ExecutionTimeMs:    res.Stats.Duration.Milliseconds(),
		ErrorsCount:        len(res.Errors),
		ErrorDetails:       details,
		RunDate:            o.now(),
	}

	// The audit row is written even when the caller's context is done.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()

	err = guard(func() error {
		saved, err := o.store.InsertAuditLog(logCtx, entry)
		if err == nil && saved != nil {
			res.LogID = saved.ID
		}
		return err
	})
	if err != nil {
		zap.L().Error("pipeline: audit log write failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
