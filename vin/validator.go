// Package vin decodes VINs against the NHTSA vPIC service and cross-checks
// the decoded identity against what a listing claims.
package vin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"autocurator/identity"
)

const (
	DefaultBaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"
	DefaultDelay   = 500 * time.Millisecond
	vinLength      = 17
)

var (
	ErrLength       = eris.New("vin: must be 17 characters")
	ErrIllegalChars = eris.New("vin: must not contain I, O or Q")

	// ErrService marks a decode that never got an answer: transport
	// failure, non-2xx status or an unreadable body.
	ErrService = eris.New("vin: decode service unavailable")
)

// DecodeResult is the identity the service reported for a VIN. Valid is
// true only when make, model and year were all extracted.
type DecodeResult struct {
	VIN          string `json:"vin"`
	Valid        bool   `json:"valid"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         int    `json:"year,omitempty"`
	BodyClass    string `json:"body_class,omitempty"`
	Trim         string `json:"trim,omitempty"`
	EngineModel  string `json:"engine_model,omitempty"`
	FuelType     string `json:"fuel_type,omitempty"`
	DriveType    string `json:"drive_type,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	PlantCountry string `json:"plant_country,omitempty"`
	VehicleType  string `json:"vehicle_type,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorText    string `json:"error_text,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDelay sets the minimum spacing between decode requests.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.gate = newGate(d) }
}

// WithLimiter replaces the request gate.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.gate = l }
}

// Client talks to the decode service. Requests pass through a gate that
// enforces a minimum interval between calls, whether they are issued
// sequentially or concurrently.
type Client struct {
	baseURL    string
	httpClient *http.Client
	gate       *rate.Limiter
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		gate:       newGate(DefaultDelay),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newGate allows one call immediately and then one per delay.
func newGate(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// CheckSyntax normalises a VIN and rejects bad length or I/O/Q.
func CheckSyntax(raw string) (string, error) {
	v := identity.NormalizeVIN(raw)
	if len(v) != vinLength {
		return v, eris.Wrapf(ErrLength, "got %d", len(v))
	}
	if strings.ContainsAny(v, "IOQ") {
		return v, ErrIllegalChars
	}
	return v, nil
}

// Decode looks up one VIN. Bad syntax, service error codes and partial
// decodes come back as an invalid result with a nil error. An error means
// the VIN was not judged at all: the context ended on the gate, or the
// service failed (wrapping ErrService).
func (c *Client) Decode(ctx context.Context, raw string) (DecodeResult, error) {
	v, err := CheckSyntax(raw)
	if err != nil {
		return DecodeResult{VIN: v, ErrorMessage: describeSyntax(err, v)}, nil
	}

	if err := c.gate.Wait(ctx); err != nil {
		return DecodeResult{VIN: v}, eris.Wrap(err, "vin: wait for rate gate")
	}

	res, err := c.fetch(ctx, v)
	if err != nil {
		zap.L().Warn("vin: decode service failed", zap.String("vin", v), zap.Error(err))
		return DecodeResult{VIN: v, ErrorMessage: err.Error()}, err
	}
	return res, nil
}

func describeSyntax(err error, v string) string {
	switch {
	case eris.Is(err, ErrLength):
		return fmt.Sprintf("VIN %q must be exactly 17 characters, got %d", v, len(v))
	case eris.Is(err, ErrIllegalChars):
		return fmt.Sprintf("VIN %q contains an illegal character (I, O or Q)", v)
	default:
		return err.Error()
	}
}

type decodeResponse struct {
	Count   int `json:"Count"`
	Results []struct {
		Variable string  `json:"Variable"`
		Value    *string `json:"Value"`
	} `json:"Results"`
}

func (c *Client) fetch(ctx context.Context, v string) (DecodeResult, error) {
	res := DecodeResult{VIN: v}
	endpoint := fmt.Sprintf("%s/DecodeVin/%s?format=json", c.baseURL, url.PathEscape(v))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return res, eris.Wrap(err, "vin: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return res, eris.Wrapf(ErrService, "request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, eris.Wrapf(ErrService, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload decodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return res, eris.Wrapf(ErrService, "parse response: %v", err)
	}
	if len(payload.Results) == 0 {
		return res, eris.Wrap(ErrService, "no results")
	}

	vars := make(map[string]string, len(payload.Results))
	for _, r := range payload.Results {
		if r.Value != nil {
			vars[r.Variable] = strings.TrimSpace(*r.Value)
		}
	}

	res.Make = vars["Make"]
	res.Model = vars["Model"]
	res.BodyClass = vars["Body Class"]
	res.Trim = vars["Trim"]
	res.EngineModel = vars["Engine Model"]
	res.FuelType = vars["Fuel Type - Primary"]
	res.DriveType = vars["Drive Type"]
	res.Manufacturer = vars["Manufacturer Name"]
	res.PlantCountry = vars["Plant Country"]
	res.VehicleType = vars["Vehicle Type"]
	res.ErrorCode = vars["Error Code"]
	res.ErrorText = vars["Error Text"]
	if y, err := strconv.Atoi(vars["Model Year"]); err == nil {
		res.Year = y
	}

	if !errorCodeClean(res.ErrorCode) {
		msg := res.ErrorText
		if msg == "" {
			msg = "error code " + res.ErrorCode
		}
		res.ErrorMessage = msg
		return res, nil
	}

	if res.Make == "" || res.Model == "" || res.Year == 0 {
		res.ErrorMessage = "incomplete decode: make, model and year are required"
		return res, nil
	}

	res.Valid = true
	return res, nil
}

// errorCodeClean treats an empty code or a list made only of "0" as clean.
func errorCodeClean(code string) bool {
	if code == "" {
		return true
	}
	for _, part := range strings.Split(code, ",") {
		if strings.TrimSpace(part) != "0" {
			return false
		}
	}
	return true
}

// Verification is the outcome of Verify.
type Verification struct {
	Decode     DecodeResult `json:"decode"`
	Mismatches []string     `json:"mismatches,omitempty"`
}

// OK reports a valid decode with no identity mismatches.
func (v Verification) OK() bool {
	return v.Decode.Valid && len(v.Mismatches) == 0
}

// Reason summarises why verification failed.
func (v Verification) Reason() string {
	if !v.Decode.Valid {
		return v.Decode.ErrorMessage
	}
	return strings.Join(v.Mismatches, "; ")
}

// Verify decodes vin and compares make (case-insensitive), model
// (case-insensitive substring either way) and year (exact). Empty expected
// values are not compared. Every mismatch is reported.
func (c *Client) Verify(ctx context.Context, raw, expectedMake, expectedModel string, expectedYear int) (Verification, error) {
	res, err := c.Decode(ctx, raw)
	if err != nil {
		return Verification{Decode: res}, err
	}
	out := Verification{Decode: res}
	if !res.Valid {
		return out, nil
	}
	out.Mismatches = Compare(res, expectedMake, expectedModel, expectedYear)
	return out, nil
}

// Compare lists identity mismatches between a decode and claimed values.
func Compare(res DecodeResult, expectedMake, expectedModel string, expectedYear int) []string {
	var mismatches []string

	if m := strings.TrimSpace(expectedMake); m != "" && !strings.EqualFold(m, res.Make) {
		mismatches = append(mismatches, fmt.Sprintf("make mismatch: listing says %s, VIN decodes to %s", m, res.Make))
	}
	if m := strings.TrimSpace(expectedModel); m != "" {
		claimed, decoded := strings.ToLower(m), strings.ToLower(res.Model)
		if !strings.Contains(claimed, decoded) && !strings.Contains(decoded, claimed) {
			mismatches = append(mismatches, fmt.Sprintf("model mismatch: listing says %s, VIN decodes to %s", m, res.Model))
		}
	}
	if expectedYear != 0 && expectedYear != res.Year {
		mismatches = append(mismatches, fmt.Sprintf("year mismatch: listing says %d, VIN decodes to %d", expectedYear, res.Year))
	}

	return mismatches
}

var transliteration = map[byte]int{
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
}

var positionWeights = [vinLength]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// CheckDigit computes the North American position-9 check character for a
// 17-character VIN. The existing ninth character is ignored.
func CheckDigit(v string) (byte, error) {
	if len(v) != vinLength {
		return 0, ErrLength
	}
	sum := 0
	for i := 0; i < vinLength; i++ {
		ch := v[i]
		var val int
		switch {
		case ch >= '0' && ch <= '9':
			val = int(ch - '0')
		default:
			n, ok := transliteration[ch]
			if !ok {
				return 0, ErrIllegalChars
			}
			val = n
		}
		sum += val * positionWeights[i]
	}
	r := sum % 11
	if r == 10 {
		return 'X', nil
	}
	return byte('0' + r), nil
}
