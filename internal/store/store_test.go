package store_test

import (
	"context"
	"errors"
	"testing"

	"reshelve/internal/store"
)

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

func TestOpenRejectsSecondWriter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := store.Open(dir)
	if err != nil {
		t.Fatalf("Open first: %v", err)
	}
	defer first.Close()

	second, err := store.Open(dir)
	if second != nil {
		second.Close()
	}
	if !errors.Is(err, store.ErrLocked) {
		t.Fatalf("second Open: got %v, want ErrLocked", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	type payload struct {
		Keys []string
	}

	var out payload
	found, err := s.ReadDocument(ctx, "raw_objects", &out)
	if err != nil {
		t.Fatalf("ReadDocument absent: %v", err)
	}
	if found {
		t.Fatal("ReadDocument reported a document that was never written")
	}

	in := payload{Keys: []string{"a.zip", "b.rar"}}
	if err := s.WriteDocument(ctx, "raw_objects", in); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	found, err = s.ReadDocument(ctx, "raw_objects", &out)
	if err != nil || !found {
		t.Fatalf("ReadDocument: found=%v err=%v", found, err)
	}
	if len(out.Keys) != 2 || out.Keys[0] != "a.zip" {
		t.Fatalf("ReadDocument content: %+v", out)
	}

	in.Keys = []string{"c.7z"}
	if err := s.WriteDocument(ctx, "raw_objects", in); err != nil {
		t.Fatalf("WriteDocument overwrite: %v", err)
	}
	if _, err := s.ReadDocument(ctx, "raw_objects", &out); err != nil {
		t.Fatalf("ReadDocument after overwrite: %v", err)
	}
	if len(out.Keys) != 1 || out.Keys[0] != "c.7z" {
		t.Fatalf("overwrite content: %+v", out)
	}
}

func seedTwoGroups(t *testing.T, s *store.Store) {
	t.Helper()
	items := []*store.FileItem{
		{
			GroupKey:     "5__pc__game.7z",
			Ordinal:      0,
			OriginalKey:  "raw/game.7z.001",
			OriginalName: "game.7z.001",
			OriginalSize: 1024,
			CatalogID:    5,
			Platform:     store.PlatformPC,
		},
		{
			GroupKey:     "5__pc__game.7z",
			Ordinal:      1,
			OriginalKey:  "raw/game.7z.002",
			OriginalName: "game.7z.002",
			OriginalSize: 512,
			CatalogID:    5,
			Platform:     store.PlatformPC,
		},
		{
			GroupKey:     "9__pe__other.zip",
			Ordinal:      0,
			OriginalKey:  "PE/other.zip",
			OriginalName: "other.zip",
			CatalogID:    9,
			Platform:     store.PlatformPE,
		},
	}
	inserted, err := s.SeedItems(context.Background(), items)
	if err != nil {
		t.Fatalf("SeedItems: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("SeedItems inserted %d, want 3", inserted)
	}
}

func TestSeedItemsIdempotent(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	seedTwoGroups(t, s)

	inserted, err := s.SeedItems(context.Background(), []*store.FileItem{
		{
			GroupKey:     "5__pc__game.7z",
			Ordinal:      0,
			OriginalKey:  "raw/game.7z.001",
			OriginalName: "game.7z.001",
			CatalogID:    5,
			Platform:     store.PlatformPC,
		},
	})
	if err != nil {
		t.Fatalf("SeedItems reseed: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("reseed inserted %d, want 0", inserted)
	}
}

func TestListGroupsOrdersAndPartitions(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	seedTwoGroups(t, s)

	groups, err := s.ListGroups(context.Background())
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("ListGroups returned %d groups, want 2", len(groups))
	}
	if groups[0].Key != "5__pc__game.7z" || groups[1].Key != "9__pe__other.zip" {
		t.Fatalf("group order: %q, %q", groups[0].Key, groups[1].Key)
	}
	if len(groups[0].Items) != 2 || groups[0].Items[0].Ordinal != 0 || groups[0].Items[1].Ordinal != 1 {
		t.Fatalf("first group items out of order: %+v", groups[0].Items)
	}
	if groups[0].Items[0].OriginalSize != 1024 || groups[0].Items[1].OriginalSize != 512 {
		t.Fatalf("listing sizes not persisted: %d, %d",
			groups[0].Items[0].OriginalSize, groups[0].Items[1].OriginalSize)
	}
	if groups[1].Platform != store.PlatformPE || groups[1].CatalogID != 9 {
		t.Fatalf("second group metadata: %+v", groups[1])
	}
	for _, group := range groups {
		for _, item := range group.Items {
			if item.Status != store.StatusPending {
				t.Fatalf("seeded item %q status %q, want pending", item.OriginalKey, item.Status)
			}
		}
	}
}

func TestUpdateItemPersistsStatus(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	seedTwoGroups(t, s)
	ctx := context.Background()

	groups, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	item := groups[0].Items[0]
	item.Status = store.StatusCompleted
	item.NewKey = "games/5/77/game.7z"
	item.NewSize = 1234
	if err := s.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	groups, err = s.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups after update: %v", err)
	}
	reloaded := groups[0].Items[0]
	if reloaded.Status != store.StatusCompleted || reloaded.NewKey != "games/5/77/game.7z" || reloaded.NewSize != 1234 {
		t.Fatalf("reloaded item: %+v", reloaded)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Total != 3 || counts.Completed != 1 || counts.Pending != 2 {
		t.Fatalf("Counts: %+v", counts)
	}
}

func TestUpdateUnknownItemFails(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	err := s.UpdateItem(context.Background(), &store.FileItem{ID: 42, Status: store.StatusFailed})
	if err == nil {
		t.Fatal("UpdateItem on missing row succeeded")
	}
}

func TestParseStatusAndPlatform(t *testing.T) {
	t.Parallel()

	if status, ok := store.ParseStatus("  Completed "); !ok || status != store.StatusCompleted {
		t.Fatalf("ParseStatus: got (%q, %v)", status, ok)
	}
	if _, ok := store.ParseStatus("bogus"); ok {
		t.Fatal("ParseStatus accepted bogus value")
	}
	if platform, ok := store.ParsePlatform("PE"); !ok || platform != store.PlatformPE {
		t.Fatalf("ParsePlatform: got (%q, %v)", platform, ok)
	}
	if _, ok := store.ParsePlatform("console"); ok {
		t.Fatal("ParsePlatform accepted unknown value")
	}
	if !store.StatusFailed.IsTerminal() || store.StatusProcessing.IsTerminal() {
		t.Fatal("IsTerminal classification wrong")
	}
}
