// Package posix contains cross-platform implementations of the few POSIX file commands used by task scripts.
// Relative paths are resolved against the passed working directory instead of the process' working directory
// so the commands can run inside the shell interpreter without changing directories.
package posix

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
)

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return filepath.Clean(path)
	}

	return filepath.Join(dir, path)
}

// expand resolves glob patterns on Windows since cmd.exe doesn't do it for us. On every other platform the
// shell already expanded them.
func expand(dir string, args []string, allowEmpty bool) ([]string, error) {
	items := make([]string, 0, len(args))
	for _, arg := range args {
		arg = resolve(dir, arg)
		if runtime.GOOS != "windows" {
			items = append(items, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}
			return nil, eris.Errorf("Pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

// Move moves all sources into dest. If more than one source is passed, dest has to be an existing directory.
func Move(dir string, sources []string, dest string) error {
	if len(sources) < 1 {
		return eris.New("Not enough parameters")
	}

	dest = resolve(dir, dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory!", destParent)
	}

	destIsDir := false
	info, err = os.Stat(dest)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
		}
	} else {
		destIsDir = info.IsDir()
	}

	items, err := expand(dir, sources, false)
	if err != nil {
		return err
	}

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("Can't move multiple items to %s because it is not a directory!", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// Remove deletes the passed files. Directories are only deleted if recursive is set. With force, missing
// files are silently ignored.
func Remove(dir string, args []string, recursive, force bool) error {
	items, err := expand(dir, args, force)
	if err != nil {
		return err
	}

	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Lstat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}

	return nil
}

// Mkdir creates the passed directories. With parents, missing parents are created and existing directories
// are not an error.
func Mkdir(dir string, args []string, parents bool) error {
	for _, item := range args {
		item = resolve(dir, item)

		var err error
		if parents {
			err = os.MkdirAll(item, 0770)
		} else {
			err = os.Mkdir(item, 0770)
		}

		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", item)
		}
	}

	return nil
}
