// Package reports defines the reservation service's view of the reports store.
// Report CRUD itself lives in a separate system; the allocator only needs to
// know which numbers are taken and who deleted what.
package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is the minimal projection of a stored FIU report used by the
// reservation subsystem and by seed/test fixtures.
type Report struct {
	ReportNumber string          `db:"report_number"`
	SerialNumber int64           `db:"serial_number"`
	Subject      string          `db:"subject"`
	Amount       decimal.Decimal `db:"amount"`
	Currency     string          `db:"currency"`
	CreatedBy    string          `db:"created_by"`
	CreatedAt    time.Time       `db:"created_at"`
	IsDeleted    bool            `db:"is_deleted"`
	UpdatedBy    string          `db:"updated_by"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// DeletedReport carries the deletion provenance for a hard-deleted report
// whose serial number is being reused.
type DeletedReport struct {
	ReportNumber string    `db:"report_number"`
	SerialNumber int64     `db:"serial_number"`
	DeletedAt    time.Time `db:"updated_at"`
	DeletedBy    string    `db:"updated_by"`
}
