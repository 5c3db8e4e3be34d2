package sources

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"autocurator/config"
	"autocurator/filters"
	"autocurator/identity"
	"autocurator/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DealerSource scrapes a dealer's used-inventory page with CSS selectors
// from config, optionally visiting each vehicle page for history details.
type DealerSource struct {
	cfg    *config.SourceConfig
	client *http.Client
}

func NewDealerSource(cfg *config.SourceConfig, client *http.Client) *DealerSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DealerSource{cfg: cfg, client: client}
}

func (d *DealerSource) ID() string { return d.cfg.ID }

func (d *DealerSource) Cost() float64 { return d.cfg.CostPerRun }

func (d *DealerSource) Fetch(ctx context.Context) ([]models.RawListing, error) {
	base, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "sources: parse dealer url %q", d.cfg.URL)
	}

	doc, err := d.get(ctx, d.cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "sources: fetch inventory page")
	}

	listings := d.ParseInventory(doc, base)

	if !d.cfg.Selectors.Detail.Empty() {
		for i := range listings {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if listings[i].SourceURL == "" {
				continue
			}
			if err := d.enrich(ctx, &listings[i]); err != nil {
				zap.L().Warn("dealer: detail page failed",
					zap.String("url", listings[i].SourceURL), zap.Error(err))
			}
		}
	}

	zap.L().Info("dealer inventory parsed", zap.String("source", d.cfg.ID), zap.Int("listings", len(listings)))
	return listings, nil
}

func (d *DealerSource) get(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := decodeCharset(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}
	return doc, nil
}

// decodeCharset converts non-UTF-8 pages using the Content-Type charset.
func decodeCharset(r io.Reader, contentType string) (io.Reader, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r, nil
	}
	cs := strings.ToLower(params["charset"])
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return nil, eris.Wrapf(err, "unsupported charset %q", cs)
	}
	return enc.NewDecoder().Reader(r), nil
}

// ParseInventory extracts one listing per item selector match. Items whose
// title has no model year, make and model are promos, not vehicles. A
// vehicle shown twice on the page (featured strip and grid) is kept once.
func (d *DealerSource) ParseInventory(doc *goquery.Document, base *url.URL) []models.RawListing {
	sel := d.cfg.Selectors
	var out []models.RawListing
	seen := make(map[string]bool)

	doc.Find(sel.Item).Each(func(i int, s *goquery.Selection) {
		title := text(s, sel.Title)
		year, mk, model, trim := parseTitle(title)
		if year == 0 || mk == "" || model == "" {
			zap.L().Debug("dealer: skipping non-vehicle item", zap.Int("index", i), zap.String("title", title))
			return
		}

		l := models.RawListing{
			Make:       mk,
			Model:      model,
			Trim:       trim,
			Location:   d.cfg.Location,
			SourceName: d.cfg.ID,
			DealerName: d.cfg.DealerName,
		}
		if t := text(s, sel.Trim); t != "" {
			l.Trim = t
		}
		l.Year = models.IntPtr(year)
		if p := parseMoney(text(s, sel.Price)); p > 0 {
			l.Price = models.Float64Ptr(p)
		}
		if m := parseMileage(text(s, sel.Mileage)); m > 0 {
			l.Mileage = models.IntPtr(m)
		}

		l.VIN = text(s, sel.VIN)
		if l.VIN == "" {
			l.VIN, _ = s.Attr("data-vin")
		}

		if href := attr(s, sel.Link, "href"); href != "" {
			if ref, err := url.Parse(href); err == nil {
				l.SourceURL = base.ResolveReference(ref).String()
			}
		}
		l.StateOfOrigin = filters.StateFromLocation(l.Location)

		key := identity.NormalizeVIN(l.VIN)
		if key == "" {
			key = identity.Fingerprint(&l)
		}
		if seen[key] {
			return
		}
		seen[key] = true

		out = append(out, l)
	})

	return out
}

func (d *DealerSource) enrich(ctx context.Context, l *models.RawListing) error {
	doc, err := d.get(ctx, l.SourceURL)
	if err != nil {
		return err
	}
	ApplyDetail(doc.Selection, d.cfg.Selectors.Detail, l)
	return nil
}

// ApplyDetail fills listing fields from a vehicle detail page. Values already
// present on the listing are kept.
func ApplyDetail(page *goquery.Selection, sel config.DetailSelectors, l *models.RawListing) {
	if l.VIN == "" {
		l.VIN = text(page, sel.VIN)
	}
	if l.TitleStatus == "" {
		l.TitleStatus = strings.ToLower(text(page, sel.TitleStatus))
	}
	if l.AccidentCount == nil && sel.Accidents != "" {
		if n, ok := countFromText(text(page, sel.Accidents)); ok {
			l.AccidentCount = models.IntPtr(n)
		}
	}
	if l.OwnerCount == nil && sel.Owners != "" {
		if n, ok := countFromText(text(page, sel.Owners)); ok {
			l.OwnerCount = models.IntPtr(n)
		}
	}
	if loc := text(page, sel.Location); loc != "" {
		l.Location = loc
		l.StateOfOrigin = filters.StateFromLocation(loc)
	}
}

var countWords = map[string]int{
	"one": 1, "single": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

// countFromText reads "No accidents reported", "1 accident", "One owner".
// Text without a recognisable count ("Accident reported", "Unknown") is not
// a count and leaves the field absent.
func countFromText(s string) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return 0, false
	}
	if lower == "none" || strings.HasPrefix(lower, "no ") || strings.HasPrefix(lower, "none ") {
		return 0, true
	}
	if m := digitsRe.FindString(lower); m != "" {
		n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if n, ok := countWords[strings.Fields(lower)[0]]; ok {
		return n, true
	}
	return 0, false
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func attr(s *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	v, _ := s.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}
