package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"path"
	"strings"
)

// readDirPageSize is how many entries are read from a directory at a time.
const readDirPageSize = 128

// UploadSource pairs a readable file with its path relative to the dropped
// root.
type UploadSource struct {
	Name         string
	RelativePath string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// KeyUnder returns the object key for the source under prefix.
func (s UploadSource) KeyUnder(prefix string) string {
	if s.RelativePath != "" {
		return prefix + s.RelativePath
	}
	return prefix + s.Name
}

type pendingEntry struct {
	fsPath  string
	relPath string
}

// CollectFiles flattens roots into upload sources, walking directories
// breadth first. A dropped directory keeps its own name as the first
// segment of each relative path, so dropping "docs" yields
// "docs/report.pdf" and "docs/notes/todo.txt".
func CollectFiles(fsys fs.FS, roots ...string) ([]UploadSource, error) {
	queue := make([]pendingEntry, 0, len(roots))
	for _, root := range roots {
		root = strings.Trim(root, "/")
		if root == "" {
			root = "."
		}
		rel := path.Base(root)
		if rel == "." {
			rel = ""
		}
		queue = append(queue, pendingEntry{fsPath: root, relPath: rel})
	}

	var sources []UploadSource
	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		info, err := fs.Stat(fsys, entry.fsPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.fsPath, err)
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				continue
			}
			fsPath := entry.fsPath
			sources = append(sources, UploadSource{
				Name:         info.Name(),
				RelativePath: strings.TrimLeft(entry.relPath, "/"),
				Size:         info.Size(),
				Open:         func() (io.ReadCloser, error) { return fsys.Open(fsPath) },
			})
			continue
		}

		children, err := readDirPaged(fsys, entry)
		if err != nil {
			return nil, err
		}
		queue = append(queue, children...)
	}
	return sources, nil
}

// readDirPaged reads a directory one page at a time until a page comes
// back empty.
func readDirPaged(fsys fs.FS, dir pendingEntry) ([]pendingEntry, error) {
	f, err := fsys.Open(dir.fsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir.fsPath, err)
	}
	defer func() { _ = f.Close() }()

	rd, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, fmt.Errorf("read %s: not a directory", dir.fsPath)
	}

	var children []pendingEntry
	for {
		entries, err := rd.ReadDir(readDirPageSize)
		for _, e := range entries {
			children = append(children, pendingEntry{
				fsPath:  path.Join(dir.fsPath, e.Name()),
				relPath: path.Join(dir.relPath, e.Name()),
			})
		}
		if len(entries) == 0 || errors.Is(err, io.EOF) {
			return children, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir.fsPath, err)
		}
	}
}

// FormSources turns multipart file parts into upload sources. relativePaths
// holds the browser's webkitRelativePath for each part, in the same order;
// missing or empty entries fall back to the file name.
func FormSources(files []*multipart.FileHeader, relativePaths []string) []UploadSource {
	sources := make([]UploadSource, 0, len(files))
	for i, fh := range files {
		name := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
		rel := ""
		if i < len(relativePaths) {
			rel = CleanRelativePath(relativePaths[i])
		}
		header := fh
		sources = append(sources, UploadSource{
			Name:         name,
			RelativePath: rel,
			Size:         fh.Size,
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}
	return sources
}

// CleanRelativePath strips leading separators and any attempt to climb out
// of the target prefix.
func CleanRelativePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	for p == ".." || strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(strings.TrimPrefix(p, ".."), "/")
	}
	if p == "." {
		return ""
	}
	return p
}
