package client

import (
	"context"
	"strconv"

	"github.com/coder123855/frende-cache/pkg/pagination"
)

// accessPageFetcher adapts cached reads to the pagination contract, so
// every page of a batch fetch goes through the cache under its own key.
type accessPageFetcher struct {
	access *Access
	params map[string]string
	opts   GetOptions
}

func (p *accessPageFetcher) FetchPage(ctx context.Context, endpoint string, page int) ([]byte, int, error) {
	params := make(map[string]string, len(p.params)+1)
	for k, v := range p.params {
		params[k] = v
	}
	params["page"] = strconv.Itoa(page)

	opts := p.opts
	opts.Params = params

	body, err := p.access.Get(ctx, endpoint, opts)
	if err != nil {
		return nil, 0, err
	}

	env, err := pagination.ParseEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	return body, env.TotalPages, nil
}

// GetAllPages reads every page of a paged list endpoint through the cache
// and returns the merged items array. Individual pages hit or miss the
// cache independently.
func (a *Access) GetAllPages(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	fetcher := &accessPageFetcher{access: a, params: params}
	batch := pagination.NewBatchFetcher(fetcher, pagination.Config{Logger: a.logger})

	pages, err := batch.FetchAll(ctx, url)
	if err != nil {
		return nil, err
	}
	return pagination.MergeItems(pages)
}
