package internal

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wablast/internal/app"
	"wablast/pkg/env"
	"wablast/pkg/log"
)

// Startup prepares the working directories and sweeps artifacts left behind
// by a previous process. Sessions never survive a restart, so every leftover
// credential directory and uploaded file is stale by definition.
func Startup() {
	log.Print(nil).Info("Running Startup Tasks")

	if err := os.MkdirAll(app.SessionsDir, 0o755); err != nil {
		log.Print(nil).WithError(err).Fatal("Failed to create sessions directory")
	}
	if err := os.MkdirAll(app.UploadsDir, 0o755); err != nil {
		log.Print(nil).WithError(err).Fatal("Failed to create uploads directory")
	}

	var group errgroup.Group

	group.Go(func() error {
		removed, err := sweepSessionDirs(app.SessionsDir)
		if removed > 0 {
			log.Print(nil).WithField("removed", removed).Info("Removed leftover session directories")
		}
		return err
	})

	group.Go(func() error {
		removed, err := sweepUploads(app.UploadsDir, 0)
		if removed > 0 {
			log.Print(nil).WithField("removed", removed).Info("Removed leftover uploaded files")
		}
		return err
	})

	if err := group.Wait(); err != nil {
		log.Print(nil).WithError(err).Warn("Startup sweep finished with errors")
	}
}

func sweepSessionDirs(sessionsDir string) (int, error) {
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	var firstErr error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "session-") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(sessionsDir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// sweepUploads removes uploaded files older than maxAge. A maxAge of zero
// removes everything.
func sweepUploads(uploadsDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(uploadsDir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if maxAge > 0 {
			info, infoErr := entry.Info()
			if infoErr != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
		}
		if err := os.Remove(filepath.Join(uploadsDir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

func uploadMaxAge() time.Duration {
	return env.GetEnvDurationOrDefault("WHATSAPP_UPLOAD_MAX_AGE", time.Hour)
}
