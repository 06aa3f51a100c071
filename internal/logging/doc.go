// Package logging builds slog loggers for the repost daemon and CLI, with a
// compact console handler, a JSON handler, and helpers for standardized
// attribute keys and context-derived fields.
package logging
