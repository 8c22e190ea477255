package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Missing or invalid configuration, unknown researcher
	ExitAuthError   = 3 // Repository rejected the handle/app password
	ExitRemoteError = 4 // Octopus or the PDS unreachable or failing
	ExitPartial     = 5 // Run finished but some publications failed
)
