// Package sources produces raw listings for the pipeline. Each source hides
// where listings come from (a paid aggregator, a dealer page, or the
// built-in generator) behind the same Fetch call.
package sources

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"autocurator/config"
	"autocurator/models"
)

type Source interface {
	ID() string
	Fetch(ctx context.Context) ([]models.RawListing, error)
	// Cost is the spend of the most recent Fetch in USD.
	Cost() float64
}

// Deps are the shared collaborators a source may need.
type Deps struct {
	APIClient      *http.Client
	ScrapingClient *http.Client
	ApifyAPIKey    string
}

// New builds the source for cfg.Kind. Unset or unrecognised kinds fall back
// to the built-in generator.
func New(cfg *config.SourceConfig, deps Deps) (Source, error) {
	switch cfg.Kind {
	case "apify":
		if deps.ApifyAPIKey == "" {
			return nil, eris.New("sources: APIFY_API_KEY not set")
		}
		return NewApifySource(cfg, deps.ApifyAPIKey, WithApifyHTTPClient(deps.APIClient)), nil
	case "dealer":
		if cfg.URL == "" {
			return nil, eris.Errorf("sources: dealer source %q has no url", cfg.ID)
		}
		return NewDealerSource(cfg, deps.ScrapingClient), nil
	case "generator", "":
		return NewGenerator(cfg), nil
	default:
		zap.L().Warn("unknown source kind, using generator",
			zap.String("source", cfg.ID), zap.String("kind", cfg.Kind))
		return NewGenerator(cfg), nil
	}
}
