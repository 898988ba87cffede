package upload

// State is the lifecycle state of a [Scheduler].
type State int

const (
	// Accepting uploads with none running.
	Idle State = iota
	// An upload is running.
	Uploading
	// Shutdown began. No new uploads are accepted and queued ones are finishing.
	Draining
	// Shutdown finished. Terminal.
	Stopped
)

var stateNames = map[State]string{
	Idle:      "Idle",
	Uploading: "Uploading",
	Draining:  "Draining",
	Stopped:   "Stopped",
}

// Getter for string representation of [State].
//
// Returns:
//   - name: String representation of the state
func (s State) String() string {
	return stateNames[s]
}
