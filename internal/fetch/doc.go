// Package fetch discovers and downloads source posts, either by scraping
// public profile pages or from a local sample directory in simulated mode.
package fetch
