// Package media transforms downloaded source media into publishable videos
// and composes credit-stamped thumbnails.
package media
