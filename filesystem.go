package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const groupOtherWrite os.FileMode = 0o022

// prepareWatchRoot makes sure the watch root exists and, when asked, that
// other local users may write into it. Problems are logged; the caller
// proceeds either way.
func prepareWatchRoot(fs afero.Fs, root string, grantWrite bool) {
	logger := log.WithFields(log.Fields{"component": "bootstrap", "op": "prepare-root", "root": root})

	info, err := fs.Stat(root)
	if os.IsNotExist(err) {
		logger.Error("watch root does not exist, creating it")
		if mkErr := fs.MkdirAll(root, 0o755); mkErr != nil {
			logger.WithError(mkErr).Error("failed to create watch root")
			return
		}
		info, err = fs.Stat(root)
	}
	if err != nil {
		logger.WithError(err).Error("failed to stat watch root")
		return
	}
	if !info.IsDir() {
		logger.Error("watch root is not a directory")
		return
	}

	if grantWrite {
		mode := info.Mode().Perm() | groupOtherWrite
		if chErr := fs.Chmod(root, mode); chErr != nil {
			logger.WithError(chErr).Error("failed to grant write access on watch root")
			return
		}
		logger.Infof("granted write access on watch root (mode %s)", mode)
	}
}

func entryExists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// writeNewFile streams r into a temporary sibling of target and renames it
// into place, so a failed copy never leaves a partial file at target.
func writeNewFile(fs afero.Fs, target string, r io.Reader) (int64, error) {
	dir := filepath.Dir(target)
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(target)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		fs.Remove(tmpName)
		return written, fmt.Errorf("write %s: %w", target, copyErr)
	}

	if err := fs.Rename(tmpName, target); err != nil {
		fs.Remove(tmpName)
		return written, fmt.Errorf("rename into %s: %w", target, err)
	}

	return written, nil
}
