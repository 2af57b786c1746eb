package naming

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"reshelve/internal/textnorm"
)

// Scheme identifies the multi-volume naming convention of an archive file.
// The classification is the single source of truth for multipart detection,
// primary-volume selection, and group-key derivation, so those cannot drift.
type Scheme int

const (
	// SchemeNone marks a filename with no recognized volume suffix.
	SchemeNone Scheme = iota
	// SchemeSevenZip covers numeric container volumes: name.7z.001, name.zip.002.
	SchemeSevenZip
	// SchemeRarPart covers RAR part volumes: name.part1.rar.
	SchemeRarPart
	// SchemeRStyle covers legacy RAR/zip volume extensions: name.r00, name.z01.
	SchemeRStyle
)

// String returns the scheme name for logs and skip reasons.
func (s Scheme) String() string {
	switch s {
	case SchemeSevenZip:
		return "seven_zip"
	case SchemeRarPart:
		return "rar_part"
	case SchemeRStyle:
		return "r_style"
	default:
		return "none"
	}
}

// Volume is the parsed volume suffix of one filename.
type Volume struct {
	Scheme    Scheme
	Number    int    // volume number; 0-based for SchemeRStyle, 1-based otherwise
	Base      string // filename up to the volume suffix, lowercased
	Container string // canonical container extension: 7z, zip, or rar
}

var (
	sevenZipVolumeRe = regexp.MustCompile(`(?i)^(.*)\.(7z|zip|rar)\.([0-9]{3,})$`)
	rarPartVolumeRe  = regexp.MustCompile(`(?i)^(.*)\.part([0-9]+)\.rar$`)
	rStyleVolumeRe   = regexp.MustCompile(`(?i)^(.*)\.[rz]([0-9]{2})$`)
	rarPlainRe       = regexp.MustCompile(`(?i)\.rar$`)
)

// Classify parses the volume suffix of a filename. Filenames that carry no
// recognized volume suffix (including plain .rar/.zip/.7z archives) classify
// as SchemeNone.
func Classify(name string) Volume {
	lower := strings.ToLower(textnorm.Fold(name))
	if m := sevenZipVolumeRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[3])
		return Volume{Scheme: SchemeSevenZip, Number: n, Base: m[1], Container: m[2]}
	}
	if m := rarPartVolumeRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[2])
		return Volume{Scheme: SchemeRarPart, Number: n, Base: m[1], Container: "rar"}
	}
	if m := rStyleVolumeRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[2])
		return Volume{Scheme: SchemeRStyle, Number: n, Base: m[1], Container: "rar"}
	}
	return Volume{Scheme: SchemeNone, Base: lower}
}

// GroupKey reduces the three known volume-suffix shapes to one canonical
// representative so all volumes of a split archive share a key. Names without
// a volume suffix are returned lowercased and width-folded but otherwise
// unchanged, which makes a plain name.rar land in the same group as its
// name.r00 companions.
func GroupKey(name string) string {
	v := Classify(name)
	if v.Scheme == SchemeNone {
		return v.Base
	}
	return v.Base + "." + v.Container
}

// IsMultipart reports whether any member filename carries a volume suffix.
// Presence of any volume indicator counts, not only the first one, so a group
// seen mid-sequence (name.7z.002 without .001) still registers as multipart.
func IsMultipart(names []string) bool {
	for _, name := range names {
		if Classify(name).Scheme != SchemeNone {
			return true
		}
	}
	return false
}

// SelectPrimary picks the volume to hand to the archive tool: a .part1.rar if
// present, else any .rar, else a first numeric container volume, else the
// lexicographically smallest name as a deterministic fallback.
func SelectPrimary(names []string) string {
	if len(names) == 0 {
		return ""
	}
	for _, name := range names {
		if v := Classify(name); v.Scheme == SchemeRarPart && v.Number == 1 {
			return name
		}
	}
	for _, name := range names {
		if rarPlainRe.MatchString(name) {
			return name
		}
	}
	for _, name := range names {
		if v := Classify(name); v.Scheme == SchemeSevenZip && v.Number == 1 && v.Container != "rar" {
			return name
		}
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return sorted[0]
}

// DetectScheme returns the dominant volume scheme among the names, with the
// same priority the gap detection uses: rar parts, then numeric container
// volumes, then r-style extensions.
func DetectScheme(names []string) Scheme {
	for _, want := range []Scheme{SchemeRarPart, SchemeSevenZip, SchemeRStyle} {
		for _, name := range names {
			if Classify(name).Scheme == want {
				return want
			}
		}
	}
	return SchemeNone
}

// MissingVolumes reports volume numbers absent from a contiguous sequence for
// the dominant scheme: 1..max for rar parts and numeric container volumes,
// 0..max for r-style extensions. A SchemeNone result means the names carry no
// volume suffix at all.
func MissingVolumes(names []string) (Scheme, []int) {
	scheme := DetectScheme(names)
	if scheme == SchemeNone {
		return SchemeNone, nil
	}
	present := make(map[int]struct{})
	max := 0
	for _, name := range names {
		v := Classify(name)
		if v.Scheme != scheme {
			continue
		}
		present[v.Number] = struct{}{}
		if v.Number > max {
			max = v.Number
		}
	}
	first := 1
	if scheme == SchemeRStyle {
		first = 0
	}
	var missing []int
	for n := first; n <= max; n++ {
		if _, ok := present[n]; !ok {
			missing = append(missing, n)
		}
	}
	return scheme, missing
}

// FirstVolumePresent reports whether the names include the volume the archive
// tool must start from. For r-style groups that is the plain .rar companion.
func FirstVolumePresent(names []string) bool {
	switch DetectScheme(names) {
	case SchemeRarPart:
		return hasVolume(names, SchemeRarPart, 1)
	case SchemeSevenZip:
		return hasVolume(names, SchemeSevenZip, 1)
	case SchemeRStyle:
		for _, name := range names {
			if Classify(name).Scheme == SchemeNone && rarPlainRe.MatchString(name) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// LaterVolumePresent reports whether any second or subsequent volume marker
// exists. A group that looks multipart but has only its first volume is
// incomplete by construction and must not reach extraction.
func LaterVolumePresent(names []string) bool {
	for _, name := range names {
		switch v := Classify(name); v.Scheme {
		case SchemeRarPart, SchemeSevenZip:
			if v.Number >= 2 {
				return true
			}
		case SchemeRStyle:
			return true
		}
	}
	return false
}

func hasVolume(names []string, scheme Scheme, number int) bool {
	for _, name := range names {
		if v := Classify(name); v.Scheme == scheme && v.Number == number {
			return true
		}
	}
	return false
}
