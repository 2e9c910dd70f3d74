// Package library models a music library (tracks, playlists, folders) and
// the state kept around one loaded library file.
//
// The on-disk format is the iTunes/Music XML property list, read and written
// through PlistCodec. Session tracks the loaded library plus its input and
// output paths and guards the write-state machine (none, ready, busy) that
// stops two library writes from overlapping.
package library
