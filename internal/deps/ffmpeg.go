package deps

import (
	"os"
	"path/filepath"
	"runtime"
)

// sidecar returns name from the directory holding the tempo executable when
// an executable file by that name exists there.
func sidecar(name string) (string, bool) {
	self, err := os.Executable()
	if err != nil {
		return "", false
	}
	return sidecarIn(filepath.Dir(self), name)
}

func sidecarIn(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	candidate := filepath.Join(dir, name)
	info, err := os.Stat(candidate)
	if err != nil || !isExecutable(info) {
		return "", false
	}
	return candidate, true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
