// Package ffprobe wraps the ffprobe CLI to inspect audio files.
//
// Inspect runs ffprobe with JSON output and returns stream and container
// details. The converter uses it to tell ALAC from AAC inside .m4a files.
package ffprobe
