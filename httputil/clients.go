package httputil

import (
	"net/http"
	"time"
)

// Timeouts configures the shared HTTP clients.
type Timeouts struct {
	VIN     time.Duration
	API     time.Duration
	Scraper time.Duration
}

type Clients struct {
	VIN      *http.Client // VIN decode service
	API      *http.Client // paid aggregators
	Scraping *http.Client // dealer pages
}

func NewClients(t Timeouts) *Clients {
	if t.VIN <= 0 {
		t.VIN = 10 * time.Second
	}
	if t.API <= 0 {
		t.API = 30 * time.Second
	}
	if t.Scraper <= 0 {
		t.Scraper = 15 * time.Second
	}

	scraping := &http.Client{
		Timeout: t.Scraper,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Clients{
		VIN:      &http.Client{Timeout: t.VIN},
		API:      &http.Client{Timeout: t.API},
		Scraping: scraping,
	}
}
