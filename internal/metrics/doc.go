// Package metrics registers the controller's Prometheus collectors and
// serves the scrape endpoint. Collectors are package-level and safe to
// update from any goroutine.
package metrics
