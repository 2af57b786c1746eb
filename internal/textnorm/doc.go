// Package textnorm canonicalizes release-group-style filenames and catalog
// titles so comparisons between them are stable. It handles mixed Latin/CJK
// input: full-width folding, archive suffix stripping, separator collapsing,
// and token/bigram extraction for the matching index.
package textnorm
