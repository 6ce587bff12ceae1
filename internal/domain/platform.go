package domain

import (
	"path/filepath"
	"runtime"
	"strings"
)

var archiveExts = []string{".tar.gz", ".tar.zst", ".tar.xz", ".tar.bz2", ".tgz", ".txz", ".tzst", ".tbz2", ".tar", ".zip", ".7z", ".rar"}

func Extensions() []string {
	return archiveExts
}

// ArchiveExt returns the known archive extension of name, or "" if none.
func ArchiveExt(name string) string {
	lower := strings.ToLower(filepath.Base(name))
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}

func ExecutableSuffix() string {
	switch runtime.GOOS {
	case "windows":
		return ".exe"
	case "darwin":
		return ".app"
	default:
		return ".x86_64"
	}
}
