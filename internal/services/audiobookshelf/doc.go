// Package audiobookshelf triggers library rescans on an Audiobookshelf
// server after books are organized.
//
// With a library id configured only that library is scanned; otherwise
// every book library the API key can see is scanned. Without a URL the
// service does nothing.
package audiobookshelf
