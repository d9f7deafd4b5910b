package internal

import (
	"github.com/robfig/cron/v3"

	"wablast/internal/app"
	"wablast/pkg/log"
	"wablast/pkg/whatsapp"
)

func Routines(cron *cron.Cron) {
	log.Print(nil).Info("Running Routine Tasks")

	// Periodic session health log. Sessions are removed by their own event
	// handling, this only reports what is still registered.
	_, err := cron.AddFunc("0 */5 * * * *", func() {
		if app.Registry.Len() == 0 {
			return
		}
		app.Registry.Range(func(sessionID string, handle *whatsapp.Handle) {
			log.Session(sessionID).
				WithField("state", handle.State().String()).
				WithField("pending_schedules", app.Scheduler.Pending()).
				Info("Session health")
		})
	})
	if err != nil {
		log.Print(nil).WithField("error", err.Error()).Error("Failed to add session health cron job")
	}

	// Hourly sweep of uploaded files that a failed dispatch left behind.
	_, err = cron.AddFunc("0 0 * * * *", func() {
		removed, sweepErr := sweepUploads(app.UploadsDir, uploadMaxAge())
		if sweepErr != nil {
			log.Print(nil).WithError(sweepErr).Warn("Upload sweep finished with errors")
		}
		if removed > 0 {
			log.Print(nil).WithField("removed", removed).Info("Removed stale uploaded files")
		}
	})
	if err != nil {
		log.Print(nil).WithField("error", err.Error()).Error("Failed to add upload sweep cron job")
	}

	cron.Start()
}
