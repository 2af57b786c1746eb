// Package grouping turns a raw bucket listing into the planned file items the
// pipeline tracks. It filters non-archive keys, assigns each filename a
// catalog id, derives the platform from the key path, and partitions the
// survivors into per-archive groups.
package grouping

import (
	"fmt"
	"path"
	"strings"

	"reshelve/internal/naming"
	"reshelve/internal/store"
)

// Object is one entry from the source bucket listing.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// MatchFunc assigns a catalog id to a filename, or reports no match.
type MatchFunc func(filename string) (int64, bool)

// Result partitions a listing into planned items plus the keys left behind,
// kept for reporting.
type Result struct {
	Items     []*store.FileItem
	Unmatched []string
	Filtered  []string
}

// BaseName returns the final path segment of an object key.
func BaseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}

// PlatformForKey derives the deliverable platform from the key path: any
// directory segment named "PE" marks a mobile build, everything else is PC.
func PlatformForKey(key string) store.Platform {
	segments := strings.Split(key, "/")
	if len(segments) == 0 {
		return store.PlatformPC
	}
	for _, segment := range segments[:len(segments)-1] {
		if strings.EqualFold(segment, "PE") {
			return store.PlatformPE
		}
	}
	return store.PlatformPC
}

// IsArchive reports whether a filename looks like a migratable archive:
// either one of the configured plain suffixes or any recognized multi-volume
// shape.
func IsArchive(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return naming.Classify(name).Scheme != naming.SchemeNone
}

// GroupKeyFor builds the durable identity of a file group. Catalog id and
// platform partition first so the same archive shipped for both platforms
// migrates twice; the naming key then unifies all volumes of one archive.
func GroupKeyFor(catalogID int64, platform store.Platform, filename string) string {
	return fmt.Sprintf("%d__%s__%s", catalogID, platform, naming.GroupKey(filename))
}

// Partition walks the listing in order and produces the planned file items.
// Keys that are not archives land in Filtered; archives with no catalog match
// land in Unmatched. Ordinals count per group in listing order, so the first
// volume seen keeps ordinal 0 across replans.
func Partition(objects []Object, suffixes []string, match MatchFunc) Result {
	var result Result
	ordinals := make(map[string]int)
	for _, object := range objects {
		name := BaseName(object.Key)
		if name == "" || name == "." {
			continue
		}
		if !IsArchive(name, suffixes) {
			result.Filtered = append(result.Filtered, object.Key)
			continue
		}
		catalogID, ok := match(name)
		if !ok {
			result.Unmatched = append(result.Unmatched, object.Key)
			continue
		}
		platform := PlatformForKey(object.Key)
		groupKey := GroupKeyFor(catalogID, platform, name)
		ordinal := ordinals[groupKey]
		ordinals[groupKey] = ordinal + 1
		result.Items = append(result.Items, &store.FileItem{
			GroupKey:     groupKey,
			Ordinal:      ordinal,
			OriginalKey:  object.Key,
			OriginalName: name,
			OriginalSize: object.Size,
			CatalogID:    catalogID,
			Platform:     platform,
			Status:       store.StatusPending,
		})
	}
	return result
}
