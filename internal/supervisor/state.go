package supervisor

// State is the supervisor's position in the source lifecycle.
type State int32

const (
	Starting State = iota
	Running
	Restarting
	GeneratingMock
	Stopped
)

var stateNames = [...]string{
	Starting:       "starting",
	Running:        "running",
	Restarting:     "restarting",
	GeneratingMock: "generating_mock",
	Stopped:        "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StateNames lists every state label, in declaration order.
func StateNames() []string {
	out := make([]string, len(stateNames))
	copy(out, stateNames[:])
	return out
}
