package stores

import "time"

// RunStatus is the lifecycle state of a provisioning run.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one provisioning session against one device.
type Run struct {
	// ID is the run identifier (UUID).
	ID string

	// Device is the device name the run targets.
	Device string

	// Status is the current lifecycle state.
	Status RunStatus

	// StartedAt is when the run began.
	StartedAt time.Time

	// CompletedAt is when the run reached a terminal state.
	CompletedAt *time.Time

	// Error carries the failure detail for failed runs.
	Error *string

	// CreatedAt and UpdatedAt are bookkeeping timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OperationRecord is one public operation executed within a run.
type OperationRecord struct {
	// ID is the row identifier.
	ID int64

	// RunID ties the record to its run.
	RunID string

	// Device is the device name, denormalized for direct queries.
	Device string

	// Name is the operation (power_on, update_firmware, ...).
	Name string

	// OK is the operation outcome.
	OK bool

	// Detail carries operation-specific context, such as the bundle
	// path or the veto reason.
	Detail string

	// StartedAt and FinishedAt bound the operation.
	StartedAt  time.Time
	FinishedAt time.Time
}
