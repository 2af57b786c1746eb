// Package sevenzip drives the 7-Zip command line for extraction and
// recompression. Encrypted archives are handled by cycling through candidate
// passwords; stderr classification separates wrong-password failures from
// genuine tool errors.
package sevenzip
