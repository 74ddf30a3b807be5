package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
)

// Page caps per tool.
const (
	issueMaxPages  = 5
	searchMaxPages = 3
	filesMaxPages  = 3
	maxPerPage     = 100
)

// pageIterator is a lazy, bounded walk over page=1..maxPages of a GitHub
// list endpoint. It stops after an empty page, a page without rel="next",
// or maxPages. Each page is fetched through the dispatcher and therefore
// cached on its own key; a fresh iterator over the same request replays
// from the cache.
type pageIterator struct {
	api      ghapi.API
	endpoint string
	params   url.Values
	maxPages int

	page      int
	exhausted bool
}

func newPageIterator(api ghapi.API, endpoint string, params url.Values, maxPages int) *pageIterator {
	return &pageIterator{api: api, endpoint: endpoint, params: params, maxPages: maxPages}
}

// next fetches the following page and returns its raw items. ok is false
// once the sequence has ended.
func (it *pageIterator) next(ctx context.Context) (items []json.RawMessage, ok bool, err error) {
	if it.exhausted || it.page >= it.maxPages {
		return nil, false, nil
	}
	it.page++

	params := make(url.Values, len(it.params)+1)
	for k, v := range it.params {
		params[k] = v
	}
	params.Set("page", strconv.Itoa(it.page))

	page, err := it.api.Get(ctx, it.endpoint, params)
	if err != nil {
		it.exhausted = true
		return nil, false, err
	}

	items, err = decodeItems(page.Body)
	if err != nil {
		it.exhausted = true
		return nil, false, fmt.Errorf("%s page %d: %w", it.endpoint, it.page, err)
	}
	if len(items) == 0 || !page.HasNext {
		it.exhausted = true
	}
	if len(items) == 0 {
		return nil, false, nil
	}
	return items, true, nil
}

// more reports whether items beyond those already returned may exist,
// including pages cut off by maxPages.
func (it *pageIterator) more() bool {
	return !it.exhausted
}

// decodeItems accepts a bare JSON array or a search envelope {"items": [...]}.
func decodeItems(body json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: expected a list: %v", domain.ErrMalformedResponse, err)
	}
	return envelope.Items, nil
}

// collect decodes items from it into T until limit items accepted by keep
// have been gathered. truncated reports that more matching items may exist,
// either dropped from the last page or left behind the page cap.
func collect[T any](ctx context.Context, it *pageIterator, limit int, keep func(*T) bool) (out []T, truncated bool, err error) {
	out = make([]T, 0, min(limit, maxPerPage))
	for {
		raw, ok, err := it.next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return out, it.more(), nil
		}

		for _, r := range raw {
			var v T
			if err := json.Unmarshal(r, &v); err != nil {
				return nil, false, fmt.Errorf("%s: %w: %v", it.endpoint, domain.ErrMalformedResponse, err)
			}
			if keep != nil && !keep(&v) {
				continue
			}
			if len(out) == limit {
				return out, true, nil
			}
			out = append(out, v)
		}

		if len(out) == limit {
			return out, it.more(), nil
		}
	}
}

// perPage clamps limit to GitHub's per_page range.
func perPage(limit int) string {
	return strconv.Itoa(min(max(1, limit), maxPerPage))
}
