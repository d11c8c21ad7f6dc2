package watcher

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

// eachDir calls fn for top and every non-hidden directory below it. Walk
// errors below top are skipped; an error from fn stops the walk.
func eachDir(top string, fn func(dir string) error) error {
	return filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == top {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != top && hidden(d.Name()) {
			return fs.SkipDir
		}
		return fn(path)
	})
}

// eachFile calls fn for every regular file under top, skipping hidden
// directories.
func eachFile(top string, fn func(path string)) {
	_ = filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return nil
		case d.IsDir() && path != top && hidden(d.Name()):
			return fs.SkipDir
		case d.Type().IsRegular():
			fn(path)
		}
		return nil
	})
}
