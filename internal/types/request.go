package types

import (
	"time"

	"wablast/pkg/whatsapp"
)

type RequestInitSession struct {
	SessionID string `json:"session_id"`
}

type ResponseInitSession struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type ResponseSessionStatus struct {
	Status string `json:"status"`
}

type ResponseSendNow struct {
	Status           string                    `json:"status"`
	Results          []whatsapp.DispatchResult `json:"results"`
	TotalRecipients  int                       `json:"totalNumbers"`
	TotalAttachments int                       `json:"totalFiles"`
}

type ResponseScheduled struct {
	Status           string    `json:"status"`
	ScheduledTime    time.Time `json:"scheduledTime"`
	TotalRecipients  int       `json:"totalNumbers"`
	TotalAttachments int       `json:"totalFiles"`
}
