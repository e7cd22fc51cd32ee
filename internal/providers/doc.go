// Package providers defines the pluggable catalog interface used by the
// aggregator, plus the JSON-over-HTTP plumbing shared by the concrete
// catalogs in its subpackages.
package providers
