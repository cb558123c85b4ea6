// Package backup is the Backup Engine: it executes BackupPlans against a
// set of named components, producing a manifest, optionally compressing
// and encrypting the result, verifying its integrity, and uploading it to
// remote storage.
package backup

import (
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
)

// PlanType distinguishes full vs incremental plans. Only FULL is
// implemented; incremental semantics are left to future work, and
// Validate rejects any other value rather than silently running it as FULL.
type PlanType string

const (
	Full        PlanType = "FULL"
	Incremental PlanType = "INCREMENTAL"
)

// Validate rejects any PlanType other than Full. Incremental is a known,
// named constant so callers can detect "not yet supported" instead of an
// opaque invalid-format error, but it is not executable.
func (t PlanType) Validate() error {
	switch t {
	case Full:
		return nil
	case Incremental:
		return errors.InvalidInput("type", "incremental backups are not implemented, use FULL")
	default:
		return errors.InvalidInput("type", "unrecognized plan type "+string(t))
	}
}

// Validate checks the plan's fields before it is handed to Engine.Execute.
func (p Plan) Validate() error {
	if p.ID == "" {
		return errors.InvalidInput("id", "plan id is required")
	}
	if err := p.Type.Validate(); err != nil {
		return err
	}
	if len(p.Components) == 0 {
		return errors.InvalidInput("components", "at least one component is required")
	}
	for _, c := range p.Components {
		if !IsRecognizedComponent(c) {
			return errors.InvalidInput("components", "unrecognized component "+c)
		}
	}
	return nil
}

// Plan describes what a backup execution should do.
type Plan struct {
	ID            string
	Type          PlanType
	Components    []string
	Compression   bool
	Encryption    bool
	Verification  bool
	RetentionDays int
	ScheduledAt   time.Time
}

// Status is an execution's lifecycle state.
type Status string

const (
	InProgress Status = "IN_PROGRESS"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
)

// Execution is one concrete run of a Plan.
type Execution struct {
	ID         string
	PlanID     string
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	BackupPath string
}

// ComponentResult is the outcome of backing up a single component.
type ComponentResult struct {
	Component string
	Success   bool
	Error     string
	SizeBytes int64
}

// Manifest self-describes a completed backup, sufficient to verify and
// restore it.
type Manifest struct {
	BackupID   string
	PlanID     string
	Components []ComponentResult
	Checksum   string
	Compressed bool
	Encrypted  bool
	Verified   bool
	CreatedAt  time.Time
}

// Metadata is the backup registry entry persisted through
// state.PersistenceBackend.
type Metadata struct {
	BackupID              string
	BackupPath            string
	Manifest              Manifest
	SizeBytes             int64
	Compressed            bool
	Encrypted             bool
	RemoteStorageLocation string
	IntegrityVerified     bool
}

// recognizedComponents enumerates the component backup adapters the engine
// knows how to run, in execution order.
var recognizedComponents = []string{"database", "redis", "configurations", "logs", "documents"}

// criticalComponents must succeed or the whole execution fails; the rest
// are aggregated as non-fatal manifest annotations.
var criticalComponents = map[string]bool{"database": true}

// RecognizedComponents returns a copy of the component names the engine
// knows how to back up, in execution order. Used to build a FULL plan that
// covers everything the engine supports.
func RecognizedComponents() []string {
	out := make([]string, len(recognizedComponents))
	copy(out, recognizedComponents)
	return out
}

// IsRecognizedComponent reports whether name is one of the engine's known
// component adapters.
func IsRecognizedComponent(name string) bool {
	for _, c := range recognizedComponents {
		if c == name {
			return true
		}
	}
	return false
}

// IsCritical reports whether a component's failure must abort the plan.
func IsCritical(name string) bool {
	return criticalComponents[name]
}
