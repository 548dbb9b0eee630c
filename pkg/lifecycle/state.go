package lifecycle

// State is the orchestrator phase of the (at most one) cross-reboot
// encryption job.
type State int

const (
	// StateIdle means no cross-reboot encryption is pending.
	StateIdle State = iota
	// StateAwaitingReboot means a descriptor is persisted and the
	// disruptive work waits for the next boot.
	StateAwaitingReboot
	// StateResuming means the interrupted reencryption is being driven to
	// completion.
	StateResuming
	// StateFinalizing means reencryption finished and credentials, tokens,
	// label and boot tables are being applied.
	StateFinalizing
	// StateDone means the job completed; the descriptor is gone.
	StateDone
	// StateFailed is terminal for this process; the descriptor stays so
	// the job can be retried after the next boot.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingReboot:
		return "AwaitingReboot"
	case StateResuming:
		return "Resuming"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
