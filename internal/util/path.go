package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescp17/noftp/pkg/protoerr"
)

func CheckDirectory(path string) (exists bool, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// EnsureDirectory creates path (and its parents) unless it already is a
// directory.
func EnsureDirectory(path string) error {
	exists, isDir, err := CheckDirectory(path)
	if err != nil {
		return err
	}
	if exists && !isDir {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	if !exists {
		return os.MkdirAll(path, 0o755)
	}
	return nil
}

// ResolveInside maps a forward-slash relative path received from a peer to
// a location under root. Empty, absolute and escaping paths are rejected
// with protoerr.ErrPathFailure.
func ResolveInside(root, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: path contains NUL", protoerr.ErrPathFailure)
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) || filepath.Clean(local) == "." {
		return "", fmt.Errorf("%w: %q is not a relative path inside the download directory", protoerr.ErrPathFailure, rel)
	}
	return filepath.Join(root, local), nil
}
