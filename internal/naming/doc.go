// Package naming classifies archive filenames into an enumerated set of
// multi-volume naming schemes. Multipart detection, primary-volume selection,
// group-key derivation, and gap detection all operate on the one Classify
// result instead of carrying their own regex sets.
package naming
