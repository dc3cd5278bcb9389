package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mitchellh/go-ps"

	"github.com/oshokin/cul-updater/internal/logger"
)

const (
	// MarkerFilename marks that the updater is running right now to avoid parallel execution.
	MarkerFilename = "cul-update-marker.bin"

	// baseUpdaterExecutable is the updater binary name; the platform extension is appended.
	baseUpdaterExecutable = "cul-updater"

	// markerLifetime is the period after which a stale update marker is ignored.
	// It covers a full run: five probes and five mirror timeouts.
	markerLifetime = 2 * time.Minute

	// markerFileMode is the permission of the marker file.
	markerFileMode os.FileMode = 0o600
)

// markerPath returns the marker location inside dir.
func markerPath(dir string) string {
	return filepath.Join(dir, MarkerFilename)
}

// IsUpdaterRunningNow checks presence of a marker file in dir and attempts recovery if it looks stale.
func IsUpdaterRunningNow(ctx context.Context, dir string, clk clock.Clock) bool {
	logger.Debug(ctx, "Checking for the presence of an update marker")

	path := markerPath(dir)

	fileInfo, err := os.Stat(path)
	if err == nil {
		if clk.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The update marker is too old, attempting cleanup")

		if err = terminateProcessByName(updaterExecutable()); err != nil {
			logger.WarnKV(ctx, "Unable to stop a stale updater", "error", err)
			return true
		}

		if err = os.Remove(path); err != nil {
			logger.WarnKV(ctx, "Unable to remove the stale update marker", "error", err)
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Debug(ctx, "Update marker not found, continuing")
		return false
	}

	logger.Infof(ctx, "Unable to read update marker: %v", err)

	return false
}

// createMarker writes an empty marker file in dir.
func createMarker(dir string) error {
	marker, err := os.OpenFile(markerPath(dir), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, markerFileMode)
	if err != nil {
		return err
	}

	return marker.Close()
}

// removeMarker deletes the marker file in dir if present.
func removeMarker(dir string) {
	if _, err := os.Stat(markerPath(dir)); err == nil {
		_ = os.Remove(markerPath(dir))
	}
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}

// getExecutableExtension returns ".exe" on Windows and "" elsewhere.
func getExecutableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}

func updaterExecutable() string {
	return baseUpdaterExecutable + getExecutableExtension()
}
