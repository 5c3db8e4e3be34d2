package sources

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"autocurator/config"
	"autocurator/filters"
	"autocurator/models"
	"autocurator/vin"
)

const defaultGeneratedCount = 25

type catalogEntry struct {
	make, model, prefix string // prefix is the first eight VIN characters
	trims               []string
	body                string
}

var catalog = []catalogEntry{
	{"Toyota", "RAV4", "2T3P1RFV", []string{"LE", "XLE", "XLE Premium", "Adventure"}, "SUV"},
	{"Toyota", "C-HR", "JTNKHMBX", []string{"LE", "XLE", "Limited"}, "SUV"},
	{"Toyota", "Highlander", "5TDJZRFH", []string{"L", "LE", "XLE"}, "SUV"},
	{"Toyota", "4Runner", "JTEBU5JR", []string{"SR5", "TRD Off-Road"}, "SUV"},
	{"Toyota", "Venza", "JTEAAAAH", []string{"LE", "XLE"}, "SUV"},
	{"Honda", "CR-V", "7FARW2H8", []string{"LX", "EX", "EX-L", "Touring"}, "SUV"},
	{"Honda", "HR-V", "3CZRU6H5", []string{"LX", "EX"}, "SUV"},
	{"Honda", "Pilot", "5FNYF6H5", []string{"EX", "EX-L"}, "SUV"},
	{"Honda", "Civic", "19XFC2F5", []string{"LX", "Sport"}, "Sedan"},
	{"Ford", "Escape", "1FMCU9GD", []string{"SE", "Titanium"}, "SUV"},
}

// yearCodes are the VIN position 10 model-year codes; the cycle restarts
// every 30 years (1980 and 2010 are both 'A').
const yearCodes = "ABCDEFGHJKLMNPRSTVWXY123456789"

func yearCode(year int) byte {
	if year < 1980 {
		return 'A'
	}
	return yearCodes[(year-1980)%len(yearCodes)]
}

var locations = []string{
	"San Jose, CA", "Sacramento, CA", "Reno, NV", "Phoenix, AZ", "Portland, OR",
	"Austin, TX", "Denver, CO", "Columbus, OH", "Detroit, MI", "Buffalo, NY",
}

// Generator produces a reproducible synthetic inventory. The same seed and
// count always yield the same listings, with syntactically valid VINs whose
// model-year character and check digit agree with the listing.
type Generator struct {
	id    string
	count int
	seed  int64
	year  int // calendar year model years and ages are relative to
}

func NewGenerator(cfg *config.SourceConfig) *Generator {
	g := &Generator{id: cfg.ID, count: cfg.Count, seed: cfg.Seed, year: time.Now().Year()}
	if g.id == "" {
		g.id = "generator"
	}
	if g.count <= 0 {
		g.count = defaultGeneratedCount
	}
	if g.seed == 0 {
		g.seed = 2015
	}
	return g
}

func (g *Generator) ID() string { return g.id }

func (g *Generator) Cost() float64 { return 0 }

func (g *Generator) Fetch(ctx context.Context) ([]models.RawListing, error) {
	rng := rand.New(rand.NewPCG(uint64(g.seed), uint64(g.seed)^0x9e3779b97f4a7c15))

	listings := make([]models.RawListing, 0, g.count)
	for i := 0; i < g.count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		listings = append(listings, g.listing(rng, i))
	}
	return listings, nil
}

func (g *Generator) listing(rng *rand.Rand, i int) models.RawListing {
	e := catalog[rng.IntN(len(catalog))]
	// Model years span two to twelve years old.
	year := g.year - 12 + rng.IntN(11)
	age := g.year - year
	miles := age*(8000+rng.IntN(14000)) + rng.IntN(3000)
	price := float64(8000 + rng.IntN(160)*100)
	loc := locations[rng.IntN(len(locations))]

	l := models.RawListing{
		Make:          e.make,
		Model:         e.model,
		Trim:          e.trims[rng.IntN(len(e.trims))],
		BodyType:      e.body,
		Year:          models.IntPtr(year),
		Price:         models.Float64Ptr(price),
		Mileage:       models.IntPtr(miles),
		Location:      loc,
		StateOfOrigin: filters.StateFromLocation(loc),
		SourceURL:     fmt.Sprintf("https://inventory.example/%s/%d", g.id, i+1),
		SourceName:    g.id,
		DealerName:    fmt.Sprintf("%s of %s", e.make, loc[:len(loc)-4]),
		Distance:      models.Float64Ptr(float64(5 + rng.IntN(300))),
		VIN:           generateVIN(e.prefix, year, i),
		TitleStatus:   "clean",
		AccidentCount: models.IntPtr(0),
		OwnerCount:    models.IntPtr(1 + rng.IntN(2)),
	}

	// Roughly one in five listings carries a history problem.
	switch rng.IntN(10) {
	case 0:
		l.AccidentCount = models.IntPtr(1 + rng.IntN(2))
	case 1:
		l.TitleStatus = "salvage"
	case 2:
		l.OwnerCount = models.IntPtr(3)
	}
	if rng.IntN(20) == 0 {
		l.IsRental = true
	}
	if rng.IntN(8) == 0 {
		l.VIN = ""
	}

	return l
}

func generateVIN(prefix string, year, serial int) string {
	raw := fmt.Sprintf("%s0%cU%06d", prefix, yearCode(year), 100000+serial)
	d, err := vin.CheckDigit(raw)
	if err != nil {
		return raw
	}
	return raw[:8] + string(d) + raw[9:]
}
