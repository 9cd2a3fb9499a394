package main

import (
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/graphsync/pkg/loader"
)

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".docx":     true,
	".html":     true,
	".htm":      true,
	".csv":      true,
	".json":     true,
}

func supported(p string) bool {
	return textExtensions[strings.ToLower(path.Ext(p))]
}

// idFromPath names a document after its file name without extension.
func idFromPath(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}

// idFromURL names a document after host and path of rawURL.
func idFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return u.Host
	}
	return u.Host + "/" + strings.TrimSuffix(p, path.Ext(p))
}

// collectFiles expands directories into the supported files below them.
// Explicitly named files are kept whatever their extension.
func collectFiles(fsys fs.FS, roots []string) ([]string, error) {
	var out []string
	for _, root := range roots {
		info, err := fs.Stat(fsys, root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, root)
			continue
		}
		err = fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supported(p) {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func newSource(id, p, ctype string, l loader.Loader) loader.Source {
	if ctype == "" {
		ctype = loader.ContentTypeFor(p)
	}
	return loader.Source{ID: id, Path: p, ContentType: ctype, Loader: l}
}
