package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

type archiveExtractor func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error

// getExtractor picks the extractor based on the URL's suffix. Anything that isn't a known archive is
// stored as a plain file at the destination.
func getExtractor(url string) archiveExtractor {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return eris.Wrap(err, "Failed to open gzip stream")
			}
			defer reader.Close()

			return extractTar(reader, f, bar, destPath, spec)
		}
	case strings.HasSuffix(url, ".tar.bz2"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error {
			return extractTar(bzip2.NewReader(f), f, bar, destPath, spec)
		}
	case strings.HasSuffix(url, ".tar.xz"):
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return eris.Wrap(err, "Failed to open xz stream")
			}

			return extractTar(reader, f, bar, destPath, spec)
		}
	}

	return storeFile
}

func storeFile(f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error {
	err := os.MkdirAll(filepath.Dir(destPath), 0o755)
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(destPath))
	}

	destHandle, err := os.Create(destPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to create file %s", destPath)
	}
	defer destHandle.Close()

	_, err = io.Copy(io.MultiWriter(destHandle, bar), f)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", destPath)
	}

	return destHandle.Close()
}

// extractorDest strips spec.Strip elements from the beginning of the archive path and returns the target
// path. An empty result means that the entry should be skipped.
func extractorDest(destPath, item string, spec ToolSpec) (string, error) {
	pathParts := strings.Split(filepath.Clean(filepath.FromSlash(item)), string(filepath.Separator))
	if len(pathParts) <= spec.Strip {
		return "", nil
	}

	dest := filepath.Join(destPath, filepath.Join(pathParts[spec.Strip:]...))
	if dest == destPath {
		return "", nil
	}

	if !strings.HasPrefix(dest, destPath+string(filepath.Separator)) {
		return "", eris.Errorf("Archive entry %s points outside of %s", item, destPath)
	}

	err := os.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
	}

	return dest, nil
}

// copyEntry writes an archive entry to dest and advances the bar based on the position in the archive file
func copyEntry(r io.Reader, f *os.File, bar *progressbar.ProgressBar, dest string, mode os.FileMode) error {
	destHandle, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return eris.Wrapf(err, "Failed to create file %s", dest)
	}
	defer destHandle.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, wErr := destHandle.Write(buf[:n])
			if wErr != nil {
				return eris.Wrapf(wErr, "Failed to write extracted file %s", dest)
			}

			pos, sErr := f.Seek(0, io.SeekCurrent)
			if sErr == nil {
				bar.Set64(pos)
			}
		}

		if err != nil {
			if err == io.EOF {
				break
			}
			return eris.Wrapf(err, "Failed to read archive entry for %s", dest)
		}
	}

	return destHandle.Close()
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return eris.Wrap(err, "Failed to open zip archive")
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		dest, err := extractorDest(destPath, item.Name, spec)
		if err != nil {
			return err
		}
		if dest == "" {
			continue
		}

		itemHandle, err := item.Open()
		if err != nil {
			return eris.Wrap(err, "Failed to open archive entry")
		}

		err = copyEntry(itemHandle, f, bar, dest, 0o644)
		itemHandle.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, spec ToolSpec) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		if item.Typeflag == tar.TypeDir {
			continue
		}

		dest, err := extractorDest(destPath, item.Name, spec)
		if err != nil {
			return err
		}
		if dest == "" {
			continue
		}

		switch item.Typeflag {
		case tar.TypeSymlink:
			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
		case tar.TypeReg, tar.TypeRegA:
			err = copyEntry(archive, f, bar, dest, item.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
		}
	}

	return nil
}
