// Package publish uploads approved content to the destination platform and
// derives the SEO metadata sent with it.
package publish
