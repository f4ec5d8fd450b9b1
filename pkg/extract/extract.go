// Package extract unpacks firmware update packages into a scratch
// directory. It is the concrete implementation of the unpack collaborator
// the orchestration core is handed; the core only sees its boolean
// contract.
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ArchiveUnpacker unpacks tar, tar.gz, and zip packages.
type ArchiveUnpacker struct{}

// NewArchiveUnpacker returns the default unpacker.
func NewArchiveUnpacker() *ArchiveUnpacker {
	return &ArchiveUnpacker{}
}

// Unpack extracts packagePath into destDir and reports success. All
// failures are logged here; callers only branch on the boolean.
func (u *ArchiveUnpacker) Unpack(packagePath, destDir string) bool {
	var err error
	switch {
	case strings.HasSuffix(packagePath, ".zip"):
		err = unpackZip(packagePath, destDir)
	case strings.HasSuffix(packagePath, ".tar"):
		err = unpackTar(packagePath, destDir, false)
	default:
		// Firmware bundles are gzipped tarballs regardless of vendor
		// extension (.fwpkg, .tar.gz, .tgz).
		err = unpackTar(packagePath, destDir, true)
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("package", packagePath).
			Str("dest", destDir).
			Msg("failed to unpack package")
		return false
	}

	log.Debug().Str("package", packagePath).Str("dest", destDir).Msg("package unpacked")
	return true
}

func unpackTar(packagePath, destDir string, gzipped bool) error {
	file, err := os.Open(packagePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var reader io.Reader = file
	if gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}
}

func unpackZip(packagePath, destDir string) error {
	reader, err := zip.OpenReader(packagePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target, err := securePath(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc, entry.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// securePath joins name under destDir and rejects traversal outside it.
func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.Clean(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", os.ErrPermission
	}
	return target, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}
