// Package notifications pushes operator alerts over ntfy. With no topic
// configured all notifications are silently dropped.
package notifications
