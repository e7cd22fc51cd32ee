// Package daemon hosts the long-running audioshelf process: it holds the
// single-instance lock, starts the monitor, ingestion and workflow, and
// serves the review API and Prometheus metrics over HTTP.
package daemon
