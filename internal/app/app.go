// Package app wires the process-wide singletons the controllers share: the
// relay hub, the session registry, the dispatcher and the scheduler.
package app

import (
	"wablast/pkg/env"
	"wablast/pkg/relay"
	"wablast/pkg/whatsapp"
)

var (
	Hub        *relay.Hub
	Registry   *whatsapp.Registry
	Dispatcher *whatsapp.Dispatcher
	Scheduler  *whatsapp.Scheduler

	SessionsDir string
	UploadsDir  string
)

func Init() {
	SessionsDir = env.GetEnvStringOrDefault("WHATSAPP_SESSIONS_DIR", "sessions")
	UploadsDir = env.GetEnvStringOrDefault("WHATSAPP_UPLOADS_DIR", "uploads")

	Hub = relay.NewHub()
	go Hub.Run()

	Registry = whatsapp.NewRegistry(whatsapp.NewMeowFactory(SessionsDir), Hub)
	Dispatcher = whatsapp.NewDispatcher()
	Scheduler = whatsapp.NewScheduler(Dispatcher)
}
