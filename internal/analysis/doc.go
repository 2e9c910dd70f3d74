// Package analysis estimates track tempo. A Decoder turns an audio source
// (file path or URL) into mono PCM and a Detector finds the beat period in
// it.
package analysis
