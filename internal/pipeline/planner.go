package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"reshelve/internal/grouping"
	"reshelve/internal/logging"
	"reshelve/internal/matcher"
	"reshelve/internal/services/catalog"
	"reshelve/internal/store"
)

// Document names for cached planning datasets. Each planning step persists
// its output so an interrupted or repeated plan resumes from the last dataset
// instead of refetching.
const (
	docRawObjects     = "raw_objects"
	docCatalogEntries = "catalog_entries"
	docMatchedObjects = "matched_objects"
)

// Lister enumerates the source bucket.
type Lister interface {
	List(ctx context.Context) ([]grouping.Object, error)
}

// Planner builds the migration plan: raw listing, catalog fetch, filename
// matching, grouping, and seeding of the state store.
type Planner struct {
	store    *store.Store
	source   Lister
	catalog  catalog.Service
	suffixes []string
	logger   *slog.Logger
}

// PlannerOption customizes planner construction.
type PlannerOption func(*Planner)

// WithPlannerLogger attaches a logger.
func WithPlannerLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "plan")
		}
	}
}

// NewPlanner constructs a planner.
func NewPlanner(st *store.Store, source Lister, cat catalog.Service, suffixes []string, opts ...PlannerOption) *Planner {
	planner := &Planner{
		store:    st,
		source:   source,
		catalog:  cat,
		suffixes: suffixes,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(planner)
	}
	return planner
}

// PlanSummary reports what one planning pass saw and seeded.
type PlanSummary struct {
	Objects   int
	Entries   int
	Matched   int
	Unmatched int
	Filtered  int
	NewItems  int
}

// matchedDocument is the persisted shape of the partitioning step, kept for
// inspection and unmatched-key reporting.
type matchedDocument struct {
	Items     []*store.FileItem `json:"items"`
	Unmatched []string          `json:"unmatched"`
	Filtered  []string          `json:"filtered"`
}

// Plan runs the full planning sequence. With refresh false, cached datasets
// from a previous pass are reused; with refresh true, the listing and catalog
// are refetched and the caches rewritten. Seeding is idempotent either way.
func (p *Planner) Plan(ctx context.Context, refresh bool) (PlanSummary, error) {
	// Dropping every cache up front keeps the datasets from one pass
	// together: a refetch that dies halfway leaves missing documents, never a
	// fresh listing paired with a stale catalog.
	if refresh {
		for _, doc := range []string{docRawObjects, docCatalogEntries, docMatchedObjects} {
			if err := p.store.DeleteDocument(ctx, doc); err != nil {
				return PlanSummary{}, err
			}
		}
	}

	objects, err := p.rawObjects(ctx, refresh)
	if err != nil {
		return PlanSummary{}, err
	}
	entries, err := p.catalogEntries(ctx, refresh)
	if err != nil {
		return PlanSummary{}, err
	}

	index := matcher.BuildIndex(catalog.MatcherEntries(entries))
	result := grouping.Partition(objects, p.suffixes, index.BestMatch)
	if err := p.store.WriteDocument(ctx, docMatchedObjects, matchedDocument{
		Items:     result.Items,
		Unmatched: result.Unmatched,
		Filtered:  result.Filtered,
	}); err != nil {
		return PlanSummary{}, err
	}

	inserted, err := p.store.SeedItems(ctx, result.Items)
	if err != nil {
		return PlanSummary{}, fmt.Errorf("seed plan: %w", err)
	}

	summary := PlanSummary{
		Objects:   len(objects),
		Entries:   len(entries),
		Matched:   len(result.Items),
		Unmatched: len(result.Unmatched),
		Filtered:  len(result.Filtered),
		NewItems:  inserted,
	}
	p.logger.Info("plan complete",
		logging.Int("objects", summary.Objects),
		logging.Int("matched", summary.Matched),
		logging.Int("unmatched", summary.Unmatched),
		logging.Int("new_items", summary.NewItems))
	return summary, nil
}

func (p *Planner) rawObjects(ctx context.Context, refresh bool) ([]grouping.Object, error) {
	if !refresh {
		var cached []grouping.Object
		found, err := p.store.ReadDocument(ctx, docRawObjects, &cached)
		if err != nil {
			return nil, err
		}
		if found {
			p.logger.Info("using cached source listing", logging.Int("objects", len(cached)))
			return cached, nil
		}
	}
	objects, err := p.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source objects: %w", err)
	}
	if err := p.store.WriteDocument(ctx, docRawObjects, objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (p *Planner) catalogEntries(ctx context.Context, refresh bool) ([]catalog.Entry, error) {
	if !refresh {
		var cached []catalog.Entry
		found, err := p.store.ReadDocument(ctx, docCatalogEntries, &cached)
		if err != nil {
			return nil, err
		}
		if found {
			p.logger.Info("using cached catalog", logging.Int("entries", len(cached)))
			return cached, nil
		}
	}
	entries, err := p.catalog.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	if err := p.store.WriteDocument(ctx, docCatalogEntries, entries); err != nil {
		return nil, err
	}
	return entries, nil
}
