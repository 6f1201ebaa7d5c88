package sandbox

// processHandle abstracts the platform-specific parts of child process
// control: group creation at start and group-wide termination on timeout.
type processHandle interface {
	Start() error
	Wait() error
	KillTree() error
}
