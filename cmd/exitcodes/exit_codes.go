package exitcodes

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred that has not been reported to the user yet.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 3-5 are often used for common use cases, so we avoid them.

	// ExitCodeHandledError indicates that an error occurred and was already logged, so it should not be printed
	// again at exit.
	ExitCodeHandledError = 2

	// ExitCodeRemoteError indicates that reading state from the remote endpoint failed. The error was already logged.
	ExitCodeRemoteError = 6

	// ExitCodeSnapshotError indicates that a snapshot could not be read, validated, or restored. The error was already
	// logged.
	ExitCodeSnapshotError = 7
)

// IsHandled returns whether an exit code describes an error that was already reported to the user.
func IsHandled(exitCode int) bool {
	return exitCode != ExitCodeSuccess && exitCode != ExitCodeGeneralError
}
