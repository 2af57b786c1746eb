// Package matcher assigns catalog ids to raw archive filenames. It builds an
// inverted index over Latin tokens and CJK character bigrams from every
// catalog title spelling, scores filenames against it, and gates the winner
// behind substring confirmation so coincidental token overlap does not
// produce false positives.
package matcher
