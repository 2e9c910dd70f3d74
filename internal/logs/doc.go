// Package logs reads the rotating log files written by the worker and CLI.
//
// Last returns the final lines of a file, ReadFrom continues from a saved
// offset, and Follow streams new lines as they are appended. Rotation is
// detected by the file shrinking below the saved offset, in which case
// reading restarts from the top of the new file.
package logs
