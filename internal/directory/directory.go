// Package directory looks up insurance policy fields by patient id.
//
// Not-found is reported as (zero, false, nil). An error means the directory
// itself could not be read; callers decide whether that is fatal.
package directory

import (
	"context"
	"errors"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

// Directory is a read-only patient -> policy lookup.
type Directory interface {
	Lookup(ctx context.Context, patientID string) (patient.PolicyInfo, bool, error)
}

// Entry is one row of a directory source.
type Entry struct {
	PatientID string
	patient.PolicyInfo
}

// ErrUnsupportedFormat is returned for directory files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported directory format")
