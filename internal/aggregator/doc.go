// Package aggregator fans a query out to the configured catalogs, scores
// every candidate against what is known locally, and merges the winner into
// the item's metadata.
//
// Scoring is a pure function of the reference and the candidate: an exact
// ISBN or ASIN match is 100; otherwise the Levenshtein title ratio, blended
// 70/30 with the author ratio when both sides name an author. Ties keep the
// configured provider order.
package aggregator
