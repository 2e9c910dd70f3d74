// Package convert transcodes audio files the UI cannot play into MP3 and
// caches the results per track.
//
// Converter keeps an in-memory map from track identity to output path,
// persisted in a SQLite index inside the conversion folder so conversions
// survive worker restarts. The folder carries an identity token; when the
// folder is recreated the token changes and clients drop their mirrors.
//
// The cache check and the cache store are separate steps. Two concurrent
// first-time requests for one track can both run the encoder; both write the
// same output path and the later store wins.
package convert
