package authpipeline

// Outcome is the terminal result of a Check call.
type Outcome struct {
	result     bool
	denyReason string
}

// Allowed reports whether the request was permitted.
func (o Outcome) Allowed() bool { return o.result }

// DenyReason returns the stable Deny message, or "" if Allowed.
func (o Outcome) DenyReason() string { return o.denyReason }

// Allow builds the Allow outcome.
func Allow() Outcome { return Outcome{result: true} }

// Deny builds a Deny outcome carrying one of the fixed message-table strings.
func Deny(reason string) Outcome { return Outcome{result: false, denyReason: reason} }

// Completion receives a Check's final Outcome exactly once.
type Completion func(Outcome)
