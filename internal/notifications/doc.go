// Package notifications pushes pipeline events to an ntfy topic.
//
// Three events are published: a book was organized, a book needs review,
// and a book failed. Each can be switched off in the [notifications]
// section. Without a topic the service is a no-op.
package notifications
