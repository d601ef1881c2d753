package utils

import (
	"log"
	"time"
)

const (
	// DateLayoutISO is the dash-separated date format used at the API edge.
	DateLayoutISO = "2006-01-02"
	// DateLayoutCompact is the 8-digit format stored in trade_date columns.
	DateLayoutCompact = "20060102"
)

// GetCSTTimeLocation returns the China Standard Time location.
func GetCSTTimeLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		log.Fatal("Failed to load location", err)
	}
	return loc
}

// TimeNowCST returns the current time in China Standard Time.
func TimeNowCST() time.Time {
	return time.Now().In(GetCSTTimeLocation())
}

// IsTradingDay reports whether t falls on an A-share trading day.
// Weekend-only check for now; the exchange holiday calendar is not consulted.
func IsTradingDay(t time.Time) bool {
	switch t.In(GetCSTTimeLocation()).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// CompactDate converts an ISO date string (2024-12-20) to compact form
// (20241220). Input already in compact form is returned unchanged.
func CompactDate(date string) string {
	t, err := time.Parse(DateLayoutISO, date)
	if err != nil {
		return date
	}
	return t.Format(DateLayoutCompact)
}

// ISODate converts a compact date string (20241220) to ISO form (2024-12-20).
func ISODate(date string) string {
	t, err := time.Parse(DateLayoutCompact, date)
	if err != nil {
		return date
	}
	return t.Format(DateLayoutISO)
}
