package fileInfo

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/gabriel-vasile/mimetype"
)

// SourceFile is one regular file to send. RelPath is the path announced to
// the receiver: forward-slash separated and rooted at the name of the path
// the user asked to send.
type SourceFile struct {
	Path     string `json:"-"`
	RelPath  string `json:"rel_path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// Enumerate lists the regular files under root. A file yields itself; a
// directory yields every file below it, sorted by RelPath. Entries that
// cannot be read are skipped and logged.
func Enumerate(root string) ([]SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(filepath.Clean(root))

	if !info.IsDir() {
		return []SourceFile{newSourceFile(root, base, info)}, nil
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			if p == root {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Warn("Skipping unreadable entry", "path", p, "error", err)
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, newSourceFile(p, path.Join(base, filepath.ToSlash(rel)), info))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}

func newSourceFile(p, rel string, info fs.FileInfo) SourceFile {
	f := SourceFile{
		Path:    p,
		RelPath: rel,
		Size:    info.Size(),
	}
	mime, err := mimetype.DetectFile(p)
	if err != nil {
		f.MimeType = "application/octet-stream"
	} else {
		f.MimeType = mime.String()
	}
	return f
}

// TotalSize sums the sizes of files.
func TotalSize(files []SourceFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
