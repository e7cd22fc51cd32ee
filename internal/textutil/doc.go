// Package textutil provides text processing utilities for fuzzy matching and
// filename sanitization.
//
// The primary use cases are:
//   - Normalizing titles and names (accent folding, case folding, punctuation
//     removal) before comparison
//   - Computing a 0-100 similarity ratio from edit distance
//   - Sanitizing filenames and path segments for safe filesystem use
package textutil
