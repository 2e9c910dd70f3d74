// Package tags reads and writes metadata tags inside audio files.
//
// FileWriter picks a format by extension: ID3v2 frames for MP3 and Vorbis
// comments for FLAC. Read returns the common fields for any format dhowden/tag
// understands. Missing files fail with services.ErrNotFound and formats
// without write support with services.ErrUnsupported.
package tags
