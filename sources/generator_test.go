package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocurator/config"
	"autocurator/vin"
)

func TestGenerator_Deterministic(t *testing.T) {
	cfg := &config.SourceConfig{ID: "generator", Count: 40, Seed: 7}

	a, err := NewGenerator(cfg).Fetch(context.Background())
	require.NoError(t, err)
	b, err := NewGenerator(cfg).Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, a, 40)
	assert.Equal(t, a, b)

	other, err := NewGenerator(&config.SourceConfig{Count: 40, Seed: 8}).Fetch(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestGenerator_VINsAreWellFormed(t *testing.T) {
	listings, err := NewGenerator(&config.SourceConfig{Count: 60}).Fetch(context.Background())
	require.NoError(t, err)

	withVIN := 0
	for _, l := range listings {
		require.NotNil(t, l.Year)
		assert.Equal(t, "generator", l.SourceName)
		assert.NotEmpty(t, l.SourceURL)
		if l.VIN == "" {
			continue
		}
		withVIN++
		norm, err := vin.CheckSyntax(l.VIN)
		require.NoError(t, err, l.VIN)
		d, err := vin.CheckDigit(norm)
		require.NoError(t, err)
		assert.Equal(t, d, norm[8], l.VIN)
	}
	assert.Greater(t, withVIN, 0)
}

func TestGenerator_YearsFollowCalendar(t *testing.T) {
	now := time.Now().Year()
	listings, err := NewGenerator(&config.SourceConfig{Count: 80, Seed: 3}).Fetch(context.Background())
	require.NoError(t, err)

	for _, l := range listings {
		require.NotNil(t, l.Year)
		assert.GreaterOrEqual(t, *l.Year, now-12)
		assert.LessOrEqual(t, *l.Year, now-2)
		if l.VIN != "" {
			assert.Equal(t, yearCode(*l.Year), l.VIN[9], l.VIN)
		}
	}
}

func TestYearCode(t *testing.T) {
	assert.Equal(t, byte('C'), yearCode(2012))
	assert.Equal(t, byte('S'), yearCode(2025))
	assert.Equal(t, byte('T'), yearCode(2026))
	assert.Equal(t, byte('A'), yearCode(2010))
	assert.Equal(t, byte('9'), yearCode(2009))
}

func TestGenerator_Defaults(t *testing.T) {
	g := NewGenerator(&config.SourceConfig{})
	assert.Equal(t, "generator", g.ID())
	assert.Zero(t, g.Cost())

	listings, err := g.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, listings, defaultGeneratedCount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Fetch(ctx)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	src, err := New(&config.SourceConfig{Kind: "generator", ID: "gen"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "gen", src.ID())

	_, err = New(&config.SourceConfig{Kind: "apify"}, Deps{})
	assert.Error(t, err)

	_, err = New(&config.SourceConfig{Kind: "dealer"}, Deps{})
	assert.Error(t, err)


	src, err = New(&config.SourceConfig{Kind: "dealer", ID: "valley", URL: "https://valley.test"}, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &DealerSource{}, src)
}

func TestNew_UnknownKindFallsBackToGenerator(t *testing.T) {
	cfg := config.Config{Sources: map[string]*config.SourceConfig{}}

	src, err := New(cfg.Source("carsdotcom"), Deps{})
	require.NoError(t, err)
	assert.IsType(t, &Generator{}, src)
	assert.Equal(t, "carsdotcom", src.ID())

	listings, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, listings, defaultGeneratedCount)
}
