package errcode

// Outcome codes shared by render warnings, job notifications and API payloads:
// - 0: no error
// - 4xxx: recoverable or tolerated conditions (output produced, possibly degraded)
// - 5xxx: system errors (processing stopped)
const (
	OK              = 0
	ResourceMissing = 4004
	Degraded        = 4010
	Skipped         = 4020
	InvalidTemplate = 4220
	SystemError     = 5000
)
