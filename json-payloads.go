package main

import (
	"time"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
)

// AuthTicket keeps the SSO token between two CLI invocations.
type AuthTicket struct {
	Token            string    `json:"token"`
	OrganizationCode string    `json:"ov"`
	IssuedAt         time.Time `json:"issued_at"`
}

type WorkingHoursExport struct {
	OperationID hiorg.Int64          `json:"einsatz_id"`
	Hours       []hiorg.WorkingHours `json:"helfer"`
}
