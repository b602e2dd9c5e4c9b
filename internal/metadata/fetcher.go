package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
)

const defaultConcurrency = 8

// Fetcher defines the interface for fetching entity metadata by CID
//
//go:generate mockgen -source=fetcher.go -destination=../mocks/metadata_fetcher.go -package=mocks -mock_names=Fetcher=MockMetadataFetcher
type Fetcher interface {
	// Fetch returns the JSON document stored under cid, trying every gateway before failing
	Fetch(ctx context.Context, cid string) (json.RawMessage, error)

	// Prefetch fetches many CIDs concurrently. The documents that were fetched are
	// returned even when some CIDs fail; the error joins every failure.
	Prefetch(ctx context.Context, cids []string) (map[string]json.RawMessage, error)
}

type fetcher struct {
	httpClient  adapter.HTTPClient
	gateways    []string
	concurrency int
}

// NewFetcher creates a metadata fetcher over the given IPFS gateways
func NewFetcher(httpClient adapter.HTTPClient, gateways []string, concurrency int) Fetcher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	normalized := make([]string, 0, len(gateways))
	for _, gw := range gateways {
		normalized = append(normalized, strings.TrimRight(gw, "/"))
	}
	return &fetcher{
		httpClient:  httpClient,
		gateways:    normalized,
		concurrency: concurrency,
	}
}

func (f *fetcher) Fetch(ctx context.Context, cid string) (json.RawMessage, error) {
	if len(f.gateways) == 0 {
		return nil, fmt.Errorf("no IPFS gateways configured")
	}

	var errs []error
	for _, gw := range f.gateways {
		url := fmt.Sprintf("%s/ipfs/%s", gw, cid)
		body, err := f.httpClient.GetBytes(ctx, url)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if mtype := detectJSON(body); mtype != "" {
			errs = append(errs, fmt.Errorf("gateway %s returned %s instead of JSON", gw, mtype))
			continue
		}
		if !json.Valid(body) {
			errs = append(errs, fmt.Errorf("gateway %s returned invalid JSON", gw))
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("failed to fetch metadata %s from all gateways: %w", cid, errors.Join(errs...))
}

func (f *fetcher) Prefetch(ctx context.Context, cids []string) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage, len(cids))
	if len(cids) == 0 {
		return result, nil
	}

	pool := pond.NewPool(f.concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	var (
		mu   sync.Mutex
		errs []error
	)
	group := pool.NewGroup()
	seen := make(map[string]bool, len(cids))
	for _, cid := range cids {
		if cid == "" || seen[cid] {
			continue
		}
		seen[cid] = true

		group.Submit(func() {
			data, err := f.Fetch(ctx, cid)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.WarnCtx(ctx, "Failed to prefetch metadata", zap.String("cid", cid), zap.Error(err))
				errs = append(errs, err)
				return
			}
			result[cid] = data
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("metadata prefetch interrupted: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) > 0 {
		return result, fmt.Errorf("failed to prefetch %d of %d metadata documents: %w", len(errs), len(seen), errors.Join(errs...))
	}
	return result, nil
}

// detectJSON returns the detected mime type when body is not JSON, or "" when it is.
// Gateways serve HTML error pages with a 200 status often enough that the type is worth logging.
func detectJSON(body []byte) string {
	detected := mimetype.Detect(body)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("application/json") {
			return ""
		}
	}
	return detected.String()
}
