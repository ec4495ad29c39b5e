package model

import "time"

// PilotKind はパイロット申込の種類。
type PilotKind string

const (
	PilotBasic PilotKind = "basic"
	PilotPro   PilotKind = "pro"
)

// PilotApplication はパイロットプログラムへの申込を表す。
type PilotApplication struct {
	ID             string
	UserID         *string
	Kind           PilotKind
	CompanyName    string
	Website        string
	Summary        string
	Reason         string
	Purpose        string
	SiteStatusCode *int
	SiteTitle      *string
	SiteCheckedAt  *time.Time
	CreatedAt      time.Time
}
