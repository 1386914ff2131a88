package helpers

// Mode selects how a command reports results.
type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// JSONFlag is the flag that switches a command to JSON output.
const JSONFlag = "json"
