//go:build !unix

package convert

// freeBytes is unknown on this platform; -1 disables the preflight.
func freeBytes(string) (int64, error) {
	return -1, nil
}
