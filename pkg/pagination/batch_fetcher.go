// Package pagination provides parallel batch fetching for paged list
// endpoints. List responses arrive as an envelope carrying the items of one
// page plus the total page count; the batch fetcher reads page 1 to learn
// the count and fans the remaining pages out over a worker pool.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Envelope is the wire shape of one page of a paged list endpoint.
type Envelope struct {
	Items      []json.RawMessage `json:"items"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// ParseEnvelope decodes a page payload.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode page envelope: %w", err)
	}
	return &env, nil
}

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	MaxConcurrency int

	// Timeout bounds a single page fetch.
	Timeout time.Duration

	Logger zerolog.Logger
}

// DefaultConfig returns safe defaults for the FRENDE API.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches a single page of an endpoint and reports the total
// page count seen in the response.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint string, page int) (data []byte, totalPages int, err error)
}

// PageResult is the outcome of fetching one page.
type PageResult struct {
	Page int
	Data []byte
	Err  error
}

// BatchFetcher fetches all pages of an endpoint in parallel.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher over the given page fetcher.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  config.Logger.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll fetches every page of endpoint. Page 1 is fetched first to learn
// the total count; the remaining pages go through a worker pool. The result
// maps page number to raw payload. A failed page aborts the batch.
func (bf *BatchFetcher) FetchAll(ctx context.Context, endpoint string) (map[int][]byte, error) {
	start := time.Now()

	firstPage, totalPages, err := bf.fetcher.FetchPage(ctx, endpoint, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	if totalPages < 1 {
		totalPages = 1
	}

	results := map[int][]byte{1: firstPage}
	if totalPages == 1 {
		return results, nil
	}

	bf.logger.Debug().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	pageQueue := make(chan int, totalPages)
	pageResults := make(chan PageResult, totalPages)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	workers := bf.config.MaxConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, endpoint, pageQueue, pageResults, &wg)
	}
	go func() {
		wg.Wait()
		close(pageResults)
	}()

	for result := range pageResults {
		if result.Err != nil {
			bf.logger.Warn().
				Err(result.Err).
				Int("page", result.Page).
				Str("endpoint", endpoint).
				Msg("Page fetch failed")
			return nil, fmt.Errorf("fetch page %d: %w", result.Page, result.Err)
		}
		results[result.Page] = result.Data
	}

	bf.logger.Debug().
		Str("endpoint", endpoint).
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Page fetch complete")

	return results, nil
}

func (bf *BatchFetcher) worker(ctx context.Context, endpoint string, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for page := range pageQueue {
		select {
		case <-ctx.Done():
			results <- PageResult{Page: page, Err: ctx.Err()}
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		data, _, err := bf.fetcher.FetchPage(pageCtx, endpoint, page)
		cancel()

		results <- PageResult{Page: page, Data: data, Err: err}
	}
}

// MergeItems concatenates the items arrays of the fetched pages in page
// order into a single JSON array.
func MergeItems(pages map[int][]byte) ([]byte, error) {
	order := make([]int, 0, len(pages))
	for page := range pages {
		order = append(order, page)
	}
	sort.Ints(order)

	var items []json.RawMessage
	for _, page := range order {
		env, err := ParseEnvelope(pages[page])
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		items = append(items, env.Items...)
	}

	if items == nil {
		items = []json.RawMessage{}
	}
	return json.Marshal(items)
}
