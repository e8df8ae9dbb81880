// Package refdata loads country and language reference data used to guide
// the survey's country and language steps.
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultURL is the public country data source.
const DefaultURL = "https://restcountries.com/v3.1/all?fields=name,cca2,languages"

// Country is one record of the country source.
type Country struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2      string            `json:"cca2"`
	Languages map[string]string `json:"languages"`
}

// Reference is the digested data handed to the survey.
type Reference struct {
	// Codes are upper-case ISO 3166-1 alpha-2 country codes, sorted.
	Codes []string
	// Languages are display names, sorted and unique.
	Languages []string
}

// Empty reports whether nothing usable was loaded.
func (r Reference) Empty() bool {
	return len(r.Codes) == 0 && len(r.Languages) == 0
}

// Client fetches country data over HTTP.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client for url.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Countries fetches the raw country list.
func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("refdata: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refdata: fetch countries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("refdata: fetch countries: status %d", resp.StatusCode)
	}

	var countries []Country
	if err := json.NewDecoder(resp.Body).Decode(&countries); err != nil {
		return nil, fmt.Errorf("refdata: decode countries: %w", err)
	}
	return countries, nil
}

// Load fetches and digests reference data. Failures are logged and yield
// an empty Reference, which leaves the survey steps unconstrained.
func Load(ctx context.Context, c *Client, log zerolog.Logger) Reference {
	countries, err := c.Countries(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reference data unavailable")
		return Reference{}
	}
	ref := Digest(countries)
	log.Debug().Int("countries", len(ref.Codes)).Int("languages", len(ref.Languages)).Msg("reference data loaded")
	return ref
}

// Digest validates country codes and collects language names. Records with
// a code that is not an ISO 3166 country are skipped.
func Digest(countries []Country) Reference {
	codes := make(map[string]bool)
	langs := make(map[string]bool)

	for _, c := range countries {
		if code, ok := CountryCode(c.CCA2); ok {
			codes[code] = true
		}
		for key, name := range c.Languages {
			if name = languageName(key, name); name != "" {
				langs[name] = true
			}
		}
	}
	return Reference{Codes: sortedKeys(codes), Languages: sortedKeys(langs)}
}

// CountryCode canonicalizes s as an ISO 3166-1 alpha-2 country code.
func CountryCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return "", false
	}
	r, err := language.ParseRegion(s)
	if err != nil || !r.IsCountry() {
		return "", false
	}
	return r.String(), true
}

// CountryName returns the English name of a country code, or "" if unknown.
func CountryName(code string) string {
	r, err := language.ParseRegion(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	return display.English.Regions().Name(r)
}

// languageName prefers the source's name and falls back to the English
// display name of the ISO 639 code.
func languageName(code, name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	base, err := language.ParseBase(code)
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(base)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
