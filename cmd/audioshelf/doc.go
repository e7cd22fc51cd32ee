// Command audioshelf runs the audiobook ingestion daemon and drives its
// review API from the terminal.
package main
