// Package identification derives the initial metadata of a file group from
// embedded tags and from the directory or file name.
//
// Name parsing strips release noise ([MP3], (Unabridged), 64kbps), pulls a
// bracketed year and a "(Series #N)" hint, then splits the remainder on
// " - " or " by ". Two-part names follow pipeline.filename_order unless one
// side is unmistakably a person name written with initials. Tag values always
// win over name-derived values.
package identification
