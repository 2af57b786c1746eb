package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"reshelve/internal/grouping"
	"reshelve/internal/pipeline"
	"reshelve/internal/services/catalog"
	"reshelve/internal/store"
)

var archiveSuffixes = []string{".zip", ".rar", ".7z"}

type fakeLister struct {
	objects []grouping.Object
	calls   int
}

func (f *fakeLister) List(context.Context) ([]grouping.Object, error) {
	f.calls++
	return f.objects, nil
}

type createdResource struct {
	gameID    int64
	platform  store.Platform
	languages []string
}

type fakeCatalog struct {
	entries    []catalog.Entry
	listCalls  int
	listErr    error
	resourceID int64
	resources  []createdResource
	files      []catalog.ResourceFile
}

func (f *fakeCatalog) ListEntries(context.Context) ([]catalog.Entry, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeCatalog) CreateResource(_ context.Context, gameID int64, platform store.Platform, languages []string) (int64, error) {
	f.resources = append(f.resources, createdResource{gameID: gameID, platform: platform, languages: languages})
	return f.resourceID, nil
}

func (f *fakeCatalog) CreateResourceFile(_ context.Context, _ int64, file catalog.ResourceFile) (int64, error) {
	f.files = append(f.files, file)
	return 1, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestPlanSeedsAndCaches(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	lister := &fakeLister{objects: []grouping.Object{
		{Key: "raw/foo.bar.2023.7z.001", Size: 100},
		{Key: "raw/foo.bar.2023.7z.002", Size: 50},
		{Key: "raw/notes.txt", Size: 1},
		{Key: "raw/unrelated.thing.zip", Size: 10},
	}}
	cat := &fakeCatalog{entries: []catalog.Entry{{ID: 5, Title: "Foo Bar"}}}

	planner := pipeline.NewPlanner(st, lister, cat, archiveSuffixes)
	summary, err := planner.Plan(context.Background(), false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := pipeline.PlanSummary{Objects: 4, Entries: 1, Matched: 2, Unmatched: 1, Filtered: 1, NewItems: 2}
	if summary != want {
		t.Fatalf("summary: %+v, want %+v", summary, want)
	}

	groups, err := st.ListGroups(context.Background())
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Items) != 2 {
		t.Fatalf("groups: %+v", groups)
	}
	if groups[0].Key != "5__pc__foo.bar.2023.7z" {
		t.Fatalf("group key: %q", groups[0].Key)
	}
}

func TestPlanReusesCachedDatasets(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	lister := &fakeLister{objects: []grouping.Object{{Key: "raw/foo.bar.2023.zip", Size: 10}}}
	cat := &fakeCatalog{entries: []catalog.Entry{{ID: 5, Title: "Foo Bar"}}}
	planner := pipeline.NewPlanner(st, lister, cat, archiveSuffixes)

	if _, err := planner.Plan(context.Background(), false); err != nil {
		t.Fatalf("first Plan: %v", err)
	}
	summary, err := planner.Plan(context.Background(), false)
	if err != nil {
		t.Fatalf("second Plan: %v", err)
	}
	if lister.calls != 1 || cat.listCalls != 1 {
		t.Fatalf("remote fetches repeated: lister %d, catalog %d", lister.calls, cat.listCalls)
	}
	if summary.NewItems != 0 {
		t.Fatalf("replanning inserted %d items", summary.NewItems)
	}

	if _, err := planner.Plan(context.Background(), true); err != nil {
		t.Fatalf("refresh Plan: %v", err)
	}
	if lister.calls != 2 || cat.listCalls != 2 {
		t.Fatalf("refresh did not refetch: lister %d, catalog %d", lister.calls, cat.listCalls)
	}
}

func TestPlanInterruptedRefreshLeavesNoStaleCaches(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	lister := &fakeLister{objects: []grouping.Object{{Key: "raw/foo.bar.2023.zip", Size: 10}}}
	cat := &fakeCatalog{entries: []catalog.Entry{{ID: 5, Title: "Foo Bar"}}}
	planner := pipeline.NewPlanner(st, lister, cat, archiveSuffixes)

	if _, err := planner.Plan(context.Background(), false); err != nil {
		t.Fatalf("first Plan: %v", err)
	}

	cat.listErr = errors.New("catalog unavailable")
	if _, err := planner.Plan(context.Background(), true); err == nil {
		t.Fatal("refresh with failing catalog succeeded")
	}

	// The old catalog cache was dropped before the refetch, so the next plan
	// pairs the new listing with a fresh catalog instead of the stale one.
	cat.listErr = nil
	if _, err := planner.Plan(context.Background(), false); err != nil {
		t.Fatalf("Plan after failed refresh: %v", err)
	}
	if cat.listCalls != 3 {
		t.Fatalf("stale catalog cache reused after failed refresh: %d fetches", cat.listCalls)
	}
}
