package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"autocurator/filters"
	"autocurator/models"
	"autocurator/storage"
	"autocurator/vin"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	ravVIN = "2T3P1RFV8MW123456"
	crvVIN = "7FARW2H89ME012345"
	hrvVIN = "3CZRU6H52MM700001"
)

type fakeSource struct {
	listings []models.RawListing
	err      error
	panicMsg string
	cost     float64
}

func (f *fakeSource) ID() string    { return "fake" }
func (f *fakeSource) Cost() float64 { return f.cost }
func (f *fakeSource) Fetch(context.Context) ([]models.RawListing, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.RawListing, len(f.listings))
	copy(out, f.listings)
	return out, nil
}

type memStore struct {
	mu         sync.Mutex
	vehicles   map[string]*models.Vehicle
	logs       []models.SearchLog
	insertErrs map[string]error
	logErr     error
}

func newMemStore() *memStore {
	return &memStore{vehicles: make(map[string]*models.Vehicle), insertErrs: make(map[string]error)}
}

func (m *memStore) Exists(_ context.Context, vin string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.vehicles[vin]
	return ok, nil
}

func (m *memStore) Insert(_ context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertErrs[v.VIN]; err != nil {
		return nil, err
	}
	if _, ok := m.vehicles[v.VIN]; ok {
		return nil, storage.ErrDuplicate
	}
	m.vehicles[v.VIN] = v
	return v, nil
}

func (m *memStore) InsertAuditLog(_ context.Context, l *models.SearchLog) (*models.SearchLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return nil, m.logErr
	}
	l.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, *l)
	return l, nil
}

func (m *memStore) RecentSearchLogs(context.Context, int) ([]models.SearchLog, error) {
	return m.logs, nil
}

func (m *memStore) CountVehicles(context.Context) (int, error) {
	return len(m.vehicles), nil
}

func (m *memStore) Close() error { return nil }

type fakeVerifier struct {
	err      error
	panicMsg string
	reject   map[string]bool
	calls    int
}

func (f *fakeVerifier) ValidateBatch(_ context.Context, listings []*models.RawListing) (vin.BatchResult, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return vin.BatchResult{}, f.err
	}
	var out vin.BatchResult
	for _, l := range listings {
		o := vin.Outcome{Listing: l}
		if l.VIN != "" && !f.reject[l.VIN] {
			o.Verification.Decode = vin.DecodeResult{VIN: l.VIN, Valid: true, Make: l.Make, Model: l.Model, Year: *l.Year}
		} else {
			o.Verification.Decode.ErrorMessage = "rejected"
		}
		out.Outcomes = append(out.Outcomes, o)
	}
	return out, nil
}

type fakeArchiver struct {
	err   error
	calls int
}

func (f *fakeArchiver) ArchiveBatch(_ context.Context, source, runID string, _ []models.RawListing) (string, error) {
	f.calls++
	return "raw/" + source + "/" + runID + ".json", f.err
}

func testCriteria() filters.Criteria {
	return filters.DefaultCriteria().WithAsOfYear(2026)
}

func listing(vinCode, mk, model string, year int, price float64, miles int) models.RawListing {
	return models.RawListing{
		Make:          mk,
		Model:         model,
		Year:          models.IntPtr(year),
		Price:         models.Float64Ptr(price),
		Mileage:       models.IntPtr(miles),
		Location:      "San Jose, CA",
		SourceURL:     "https://dealer.test/" + vinCode,
		SourceName:    "fake",
		VIN:           vinCode,
		TitleStatus:   "clean",
		AccidentCount: models.IntPtr(0),
		OwnerCount:    models.IntPtr(1),
		StateOfOrigin: "CA",
	}
}

func batch() []models.RawListing {
	return []models.RawListing{
		listing(ravVIN, "Toyota", "RAV4", 2021, 18500, 28000),
		listing(crvVIN, "Honda", "CR-V", 2020, 17000, 52000),
		listing("2T3P1RFV8MW999999", "Toyota", "RAV4", 2021, 42500, 28000), // over budget
		listing(hrvVIN, "Honda", "HR-V", 2021, 16000, 30000),
	}
}

func lastLog(t *testing.T, m *memStore) models.SearchLog {
	t.Helper()
	require.NotEmpty(t, m.logs)
	return m.logs[len(m.logs)-1]
}

func TestRun_HappyPath(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{listings: batch(), cost: 0.15}
	verifier := &fakeVerifier{reject: map[string]bool{hrvVIN: true}}
	archiver := &fakeArchiver{}

	res := New(src, store, verifier, testCriteria(), WithArchiver(archiver)).Run(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Stats.Fetched)
	assert.Equal(t, 3, res.Stats.AfterBasicFilter)
	assert.Equal(t, 2, res.Stats.AfterVINValidation)
	assert.Equal(t, 2, res.Stats.Stored)
	assert.Zero(t, res.Stats.Duplicates)
	assert.Equal(t, 0.15, res.Stats.APICost)
	assert.Equal(t, []string{ravVIN, crvVIN}, res.Stored)
	assert.Equal(t, 1, res.Rejections[filters.CodePriceAboveMax])
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, archiver.calls)
	assert.NotEmpty(t, res.ArchiveKey)

	rav := store.vehicles[ravVIN]
	require.NotNil(t, rav)
	assert.Equal(t, models.ReviewStatusPending, rav.ReviewStatus)
	assert.Equal(t, 10, rav.ModelWeight)
	assert.NotEmpty(t, rav.AISummary)

	log := lastLog(t, store)
	assert.Equal(t, res.RunID, log.RunID)
	assert.Equal(t, "fake", log.Source)
	assert.True(t, log.Success)
	assert.Equal(t, 4, log.ListingsFetched)
	assert.Equal(t, 3, log.AfterBasicFilter)
	assert.Equal(t, 2, log.AfterVINValidation)
	assert.Equal(t, 2, log.FinalStored)
	assert.Equal(t, 0, log.ErrorsCount)
	assert.JSONEq(t, `[]`, string(log.ErrorDetails))
	assert.Equal(t, res.LogID, log.ID)
}

func TestRun_DedupAcrossRuns(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{listings: batch()[:1]}
	o := New(src, store, &fakeVerifier{}, testCriteria())

	first := o.Run(context.Background())
	require.True(t, first.Success)
	assert.Equal(t, 1, first.Stats.Stored)
	assert.Zero(t, first.Stats.Duplicates)

	second := o.Run(context.Background())
	require.True(t, second.Success)
	assert.Zero(t, second.Stats.Stored)
	assert.Equal(t, 1, second.Stats.Duplicates)

	assert.Len(t, store.vehicles, 1)
	assert.Len(t, store.logs, 2)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_DedupWithinBatch(t *testing.T) {
	store := newMemStore()
	dup := listing(strings.ToLower(ravVIN), "Toyota", "RAV4", 2021, 17900, 26000)
	src := &fakeSource{listings: append(batch()[:1], dup)}

	res := New(src, store, &fakeVerifier{}, testCriteria()).Run(context.Background())
	assert.Equal(t, 1, res.Stats.Stored)
	assert.Equal(t, 1, res.Stats.Duplicates)
	assert.Len(t, store.vehicles, 1)
}

func TestRun_VINStageDegrades(t *testing.T) {
	store := newMemStore()
	noVIN := listing("", "Toyota", "RAV4", 2021, 18000, 20000)
	crit := testCriteria()
	crit.RequireVIN = false
	src := &fakeSource{listings: append(batch(), noVIN)}

	res := New(src, store, &fakeVerifier{err: errors.New("vpic unreachable")}, crit).Run(context.Background())

	assert.True(t, res.Success)
	assert.True(t, res.Stats.VINDegraded)
	assert.Equal(t, 4, res.Stats.AfterBasicFilter)
	assert.Equal(t, 3, res.Stats.AfterVINValidation)
	assert.Equal(t, 3, res.Stats.Stored)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, StageVIN, res.Errors[0].Stage)
	assert.False(t, res.Errors[0].Fatal)
	assert.Contains(t, res.Errors[0].Message, "treating the remaining 4 as valid")

	var details []StageError
	require.NoError(t, json.Unmarshal(lastLog(t, store).ErrorDetails, &details))
	require.Len(t, details, 1)
	assert.Equal(t, StageVIN, details[0].Stage)
}

func TestRun_VINStagePanicDegrades(t *testing.T) {
	store := newMemStore()
	res := New(&fakeSource{listings: batch()}, store, &fakeVerifier{panicMsg: "nil map"}, testCriteria()).Run(context.Background())

	assert.True(t, res.Success)
	assert.True(t, res.Stats.VINDegraded)
	assert.Equal(t, 3, res.Stats.Stored)
}

func TestRun_FetchFailureIsFatalButLogged(t *testing.T) {
	store := newMemStore()
	verifier := &fakeVerifier{}
	res := New(&fakeSource{err: errors.New("apify 503")}, store, verifier, testCriteria()).Run(context.Background())

	assert.False(t, res.Success)
	assert.Zero(t, res.Stats.Fetched)
	assert.Zero(t, verifier.calls)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, StageFetch, res.Errors[0].Stage)
	assert.True(t, res.Errors[0].Fatal)

	log := lastLog(t, store)
	assert.False(t, log.Success)
	assert.Equal(t, 1, log.ErrorsCount)
	assert.Contains(t, string(log.ErrorDetails), "apify 503")
}

func TestRun_FetchPanicIsRecovered(t *testing.T) {
	store := newMemStore()
	res := New(&fakeSource{panicMsg: "index out of range"}, store, &fakeVerifier{}, testCriteria()).Run(context.Background())

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, StageFetch, res.Errors[0].Stage)
	assert.Contains(t, res.Errors[0].Message, "index out of range")
	assert.Len(t, store.logs, 1)
}

func TestRun_StoreErrorsAreIsolated(t *testing.T) {
	store := newMemStore()
	store.insertErrs[ravVIN] = errors.New("disk full")

	res := New(&fakeSource{listings: batch()}, store, &fakeVerifier{}, testCriteria()).Run(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.StoreErrors)
	assert.Equal(t, 2, res.Stats.Stored)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, StageStore, res.Errors[0].Stage)
	assert.False(t, res.Errors[0].Fatal)
	assert.Contains(t, res.Errors[0].Message, ravVIN)
}

func TestRun_AuditLogFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.logErr = errors.New("read-only database")

	res := New(&fakeSource{listings: batch()}, store, &fakeVerifier{}, testCriteria()).Run(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Stats.Stored)
	assert.Zero(t, res.LogID)
}

func TestRun_ArchiveFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	archiver := &fakeArchiver{err: errors.New("bucket missing")}

	res := New(&fakeSource{listings: batch()}, store, &fakeVerifier{}, testCriteria(), WithArchiver(archiver)).Run(context.Background())
	assert.True(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, StageArchive, res.Errors[0].Stage)
	assert.Equal(t, 3, res.Stats.Stored)
}

func TestRun_EmptyBatch(t *testing.T) {
	store := newMemStore()
	res := New(&fakeSource{}, store, &fakeVerifier{}, testCriteria()).Run(context.Background())

	assert.True(t, res.Success)
	assert.Zero(t, res.Stats.Fetched)
	assert.Zero(t, res.Stats.Stored)
	assert.Len(t, store.logs, 1)
}

func TestRun_WithVINService(t *testing.T) {
	decodes := map[string]string{
		ravVIN: `{"Make":"TOYOTA","Model":"RAV4","Model Year":"2021","Trim":"XLE","Drive Type":"AWD","Error Code":"0"}`,
		crvVIN: `{"Make":"TOYOTA","Model":"Camry","Model Year":"2020","Error Code":"0"}`,
		hrvVIN: `{"Make":"HONDA","Model":"HR-V","Model Year":"2021","Error Code":"0"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := strings.TrimPrefix(r.URL.Path, "/DecodeVin/")
		var vars map[string]string
		_ = json.Unmarshal([]byte(decodes[v]), &vars)
		var results []map[string]string
		for k, val := range vars {
			results = append(results, map[string]string{"Variable": k, "Value": val})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"Count": len(results), "Results": results})
	}))
	defer srv.Close()

	client := vin.NewClient(vin.WithBaseURL(srv.URL), vin.WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	store := newMemStore()

	res := New(&fakeSource{listings: batch()}, store, client, testCriteria()).Run(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Stats.AfterBasicFilter)
	assert.Equal(t, 2, res.Stats.AfterVINValidation)
	assert.ElementsMatch(t, []string{ravVIN, hrvVIN}, res.Stored)
	assert.Equal(t, "AWD", store.vehicles[ravVIN].DriveType)
}

func TestRun_VINServiceDownDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := vin.NewClient(vin.WithBaseURL(srv.URL), vin.WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	store := newMemStore()

	res := New(&fakeSource{listings: batch()}, store, client, testCriteria()).Run(context.Background())

	assert.True(t, res.Success)
	assert.True(t, res.Stats.VINDegraded)
	assert.Equal(t, 3, res.Stats.AfterBasicFilter)
	assert.Equal(t, 3, res.Stats.AfterVINValidation)
	assert.Equal(t, 3, res.Stats.Stored)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, StageVIN, res.Errors[0].Stage)
	assert.False(t, res.Errors[0].Fatal)
	assert.Contains(t, res.Errors[0].Message, "decode service unavailable")

	log := lastLog(t, store)
	assert.Equal(t, 1, log.ErrorsCount)
	assert.Contains(t, string(log.ErrorDetails), "vin")
}

func TestRun_VINServiceFailsMidBatch(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
			return
		}
		// First listing decodes to a different model and is rejected.
		_, _ = w.Write([]byte(`{"Count":3,"Results":[{"Variable":"Make","Value":"TOYOTA"},{"Variable":"Model","Value":"Camry"},{"Variable":"Model Year","Value":"2021"}]}`))
	}))
	defer srv.Close()

	client := vin.NewClient(vin.WithBaseURL(srv.URL), vin.WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	store := newMemStore()

	res := New(&fakeSource{listings: batch()}, store, client, testCriteria()).Run(context.Background())

	assert.True(t, res.Success)
	assert.True(t, res.Stats.VINDegraded)
	assert.Equal(t, 2, res.Stats.AfterVINValidation)
	assert.ElementsMatch(t, []string{crvVIN, hrvVIN}, res.Stored)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "after 1 of 3")
}
