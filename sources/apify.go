package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"autocurator/config"
	"autocurator/filters"
	"autocurator/models"
)

const (
	apifyAPIBase     = "https://api.apify.com/v2"
	apifyPollTimeout = 15 * time.Minute
	apifyPollDelay   = 10 * time.Second
)

type ApifyOption func(*ApifySource)

func WithApifyBaseURL(u string) ApifyOption {
	return func(s *ApifySource) { s.baseURL = strings.TrimRight(u, "/") }
}

func WithApifyHTTPClient(c *http.Client) ApifyOption {
	return func(s *ApifySource) {
		if c != nil {
			s.client = c
		}
	}
}

func WithApifyPolling(delay, timeout time.Duration) ApifyOption {
	return func(s *ApifySource) {
		s.pollDelay = delay
		s.pollTimeout = timeout
	}
}

// ApifySource runs a marketplace actor on Apify, waits for it and reads the
// run's default dataset. Cost is taken from the run's reported USD usage.
type ApifySource struct {
	cfg         *config.SourceConfig
	apiKey      string
	baseURL     string
	client      *http.Client
	pollDelay   time.Duration
	pollTimeout time.Duration
	lastCost    float64
}

func NewApifySource(cfg *config.SourceConfig, apiKey string, opts ...ApifyOption) *ApifySource {
	s := &ApifySource{
		cfg:         cfg,
		apiKey:      apiKey,
		baseURL:     apifyAPIBase,
		client:      &http.Client{Timeout: 60 * time.Second},
		pollDelay:   apifyPollDelay,
		pollTimeout: apifyPollTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ApifySource) ID() string { return s.cfg.ID }

func (s *ApifySource) Cost() float64 { return s.lastCost }

func (s *ApifySource) Fetch(ctx context.Context) ([]models.RawListing, error) {
	s.lastCost = 0
	actor := s.actorID()
	if actor == "" {
		return nil, eris.Errorf("sources: apify source %q has no actor", s.cfg.ID)
	}

	runID, err := s.startRun(ctx, actor)
	if err != nil {
		return nil, eris.Wrap(err, "sources: start apify run")
	}
	zap.L().Info("apify run started", zap.String("run_id", runID), zap.String("actor", actor))

	run, err := s.waitForRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sources: apify run failed")
	}
	s.lastCost = run.UsageTotalUsd
	zap.L().Info("apify run complete",
		zap.String("dataset_id", run.DefaultDatasetID),
		zap.Float64("usage_usd", run.UsageTotalUsd),
	)

	listings, err := s.fetchDataset(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, eris.Wrap(err, "sources: fetch apify dataset")
	}
	return listings, nil
}

// actorID converts "owner/name" into the "owner~name" form the API expects.
func (s *ApifySource) actorID() string {
	return strings.ReplaceAll(s.cfg.ApifyActor, "/", "~")
}

func (s *ApifySource) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", s.apiKey)
	return s.baseURL + path + "?" + query.Encode()
}

func (s *ApifySource) startRun(ctx context.Context, actor string) (string, error) {
	input := make(map[string]any, len(s.cfg.ApifyInput)+1)
	for k, v := range s.cfg.ApifyInput {
		input[k] = v
	}
	if s.cfg.ApifyMaxListings > 0 {
		input["maxItems"] = s.cfg.ApifyMaxListings
	}
	body, err := json.Marshal(input)
	if err != nil {
		return "", eris.Wrap(err, "marshal input")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/acts/"+actor+"/runs", nil), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", eris.Errorf("start run returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", eris.Wrap(err, "decode run")
	}
	return result.Data.ID, nil
}

type apifyRun struct {
	Status           string  `json:"status"`
	DefaultDatasetID string  `json:"defaultDatasetId"`
	UsageTotalUsd    float64 `json:"usageTotalUsd"`
}

func (s *ApifySource) waitForRun(ctx context.Context, runID string) (apifyRun, error) {
	endpoint := s.endpoint("/actor-runs/"+runID, nil)
	deadline := time.Now().Add(s.pollTimeout)

	for time.Now().Before(deadline) {
		run, err := s.pollRun(ctx, endpoint)
		if err != nil {
			zap.L().Warn("apify poll failed", zap.String("run_id", runID), zap.Error(err))
		} else {
			switch run.Status {
			case "SUCCEEDED":
				return run, nil
			case "FAILED", "ABORTED", "TIMED-OUT":
				return run, eris.Errorf("run %s: %s", runID, run.Status)
			}
			zap.L().Debug("apify run status", zap.String("run_id", runID), zap.String("status", run.Status))
		}

		select {
		case <-ctx.Done():
			return apifyRun{}, ctx.Err()
		case <-time.After(s.pollDelay):
		}
	}

	return apifyRun{}, eris.Errorf("timeout waiting for run %s", runID)
}

func (s *ApifySource) pollRun(ctx context.Context, endpoint string) (apifyRun, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apifyRun{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return apifyRun{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apifyRun{}, eris.Errorf("poll returned %d", resp.StatusCode)
	}
	var result struct {
		Data apifyRun `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return apifyRun{}, eris.Wrap(err, "decode run status")
	}
	return result.Data, nil
}

func (s *ApifySource) fetchDataset(ctx context.Context, datasetID string) ([]models.RawListing, error) {
	q := url.Values{"format": {"json"}, "clean": {"true"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("/datasets/"+datasetID+"/items", q), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, eris.Errorf("dataset fetch returned %d: %s", resp.StatusCode, string(respBody))
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, eris.Wrap(err, "decode dataset")
	}

	listings := make([]models.RawListing, 0, len(items))
	for i, item := range items {
		l, err := s.parseItem(item)
		if err != nil {
			zap.L().Warn("apify: skipping unparseable item", zap.Int("index", i), zap.Error(err))
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// apifyItem accepts the field names common to car marketplace actors.
type apifyItem struct {
	Title       string          `json:"title"`
	Make        string          `json:"make"`
	Model       string          `json:"model"`
	Trim        string          `json:"trim"`
	Year        json.RawMessage `json:"year"`
	Price       json.RawMessage `json:"price"`
	Mileage     json.RawMessage `json:"mileage"`
	VIN         string          `json:"vin"`
	URL         string          `json:"url"`
	Location    string          `json:"location"`
	State       string          `json:"state"`
	DealerName  string          `json:"dealerName"`
	BodyType    string          `json:"bodyType"`
	Distance    *float64        `json:"distance"`
	TitleStatus string          `json:"titleStatus"`
	Accidents   *int            `json:"accidentCount"`
	Owners      *int            `json:"ownerCount"`
	IsRental    bool            `json:"isRental"`
	IsFleet     bool            `json:"isFleet"`
	HasLien     bool            `json:"hasLien"`
	Flood       bool            `json:"floodDamage"`
}

func (s *ApifySource) parseItem(data json.RawMessage) (models.RawListing, error) {
	var it apifyItem
	if err := json.Unmarshal(data, &it); err != nil {
		return models.RawListing{}, err
	}

	l := models.RawListing{
		Make:          it.Make,
		Model:         it.Model,
		Trim:          it.Trim,
		VIN:           it.VIN,
		Location:      it.Location,
		SourceURL:     it.URL,
		SourceName:    s.cfg.ID,
		DealerName:    it.DealerName,
		BodyType:      it.BodyType,
		Distance:      it.Distance,
		TitleStatus:   strings.ToLower(it.TitleStatus),
		AccidentCount: it.Accidents,
		OwnerCount:    it.Owners,
		IsRental:      it.IsRental,
		IsFleet:       it.IsFleet,
		HasLien:       it.HasLien,
		FloodDamage:   it.Flood,
		StateOfOrigin: strings.ToUpper(it.State),
	}

	if l.Make == "" || l.Model == "" {
		year, mk, model, trim := parseTitle(it.Title)
		if l.Make == "" {
			l.Make = mk
		}
		if l.Model == "" {
			l.Model = model
		}
		if l.Trim == "" {
			l.Trim = trim
		}
		if year > 0 && len(it.Year) == 0 {
			l.Year = models.IntPtr(year)
		}
	}
	if l.Make == "" {
		return l, eris.New("item has no make")
	}

	if y := int(parseMoney(jsonScalar(it.Year))); y > 0 {
		l.Year = models.IntPtr(y)
	}
	if p := parseMoney(jsonScalar(it.Price)); p > 0 {
		l.Price = models.Float64Ptr(p)
	}
	if m := parseMileage(jsonScalar(it.Mileage)); m > 0 {
		l.Mileage = models.IntPtr(m)
	}
	if l.StateOfOrigin == "" {
		l.StateOfOrigin = filters.StateFromLocation(l.Location)
	}

	return l, nil
}

// jsonScalar renders a JSON number or string as plain text.
func jsonScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
