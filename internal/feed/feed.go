// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feed fetches RSS/Atom feeds and normalizes their entries.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Termos47/info-sender/internal/request"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
)

// Entry is one feed item considered for publication.
type Entry struct {
	// ID is the entry's canonical link, used as the dedup key. Entries with
	// an empty ID are discarded before they reach the aggregator's caller.
	ID        string
	Title     string
	Body      string
	Published time.Time // zero when the feed provides no publish time
	ImageURL  string
	Source    string // URL of the feed this entry came from
}

// Aggregator fetches and filters entries from a single feed URL at a time.
type Aggregator struct {
	// HTTPClient is an optional HTTP client. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// FreshWindow drops entries published longer ago than this. Zero means
	// no freshness filtering.
	FreshWindow time.Duration
	// IncludeUndated keeps entries that carry no publish time. The default
	// is to drop them, same as the freshness filter treats unknown age as
	// too old.
	IncludeUndated bool
	// MaxPerFeed bounds how many of the newest entries are inspected per
	// fetch, so a burst feed cannot flood a single cycle. Defaults to 10.
	MaxPerFeed int
	// Now is time.Now, overridable for tests.
	Now func() time.Time

	parser *gofeed.Parser
}

const fetchRetries = 3

// Fetch retrieves one feed and returns its fresh entries oldest-first.
// Transport errors are retried with exponential backoff before giving up;
// the caller is responsible for isolating a failed feed from the others.
func (a *Aggregator) Fetch(ctx context.Context, url string) ([]Entry, error) {
	if a.parser == nil {
		a.parser = gofeed.NewParser()
	}

	var parsed *gofeed.Feed
	op := func() error {
		f, err := a.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		parsed = f
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	return a.filter(parsed, url), nil
}

func (a *Aggregator) fetchOnce(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", request.UserAgent)

	httpc := a.HTTPClient
	if httpc == nil {
		httpc = request.DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("want 200, got %d", res.StatusCode)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	f, err := a.parser.Parse(res.Body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return f, nil
}

// filter applies the per-feed cap and the freshness filter, and reverses
// the inspected slice so entries come out oldest-first: within a batch the
// oldest unseen entry is published first.
func (a *Aggregator) filter(f *gofeed.Feed, url string) []Entry {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	max := a.MaxPerFeed
	if max <= 0 {
		max = 10
	}

	items := f.Items
	if len(items) > max {
		items = items[:max]
	}

	var out []Entry
	for i := len(items) - 1; i >= 0; i-- {
		e := normalize(items[i], url)
		if e.ID == "" {
			continue
		}
		if e.Published.IsZero() {
			if !a.IncludeUndated {
				continue
			}
		} else if a.FreshWindow > 0 && now().Sub(e.Published) > a.FreshWindow {
			continue
		}
		out = append(out, e)
	}
	return out
}

func normalize(item *gofeed.Item, source string) Entry {
	e := Entry{
		ID:     strings.TrimSpace(item.Link),
		Title:  StripHTML(item.Title),
		Body:   StripHTML(item.Description),
		Source: source,
	}
	if e.ID == "" {
		e.ID = strings.TrimSpace(item.GUID)
	}
	if e.Body == "" {
		e.Body = StripHTML(item.Content)
	}
	if item.PublishedParsed != nil {
		e.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		e.Published = *item.UpdatedParsed
	}
	if item.Image != nil {
		e.ImageURL = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			e.ImageURL = enc.URL
			break
		}
	}
	return e
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup tags and collapses surrounding whitespace.
func StripHTML(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}
