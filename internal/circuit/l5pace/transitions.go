package l5pace

// TransitionKind marks a change between throttle and brake.
type TransitionKind string

const (
	TransitionBrake    TransitionKind = "brake"
	TransitionThrottle TransitionKind = "throttle"
)

// Transition is a brake or throttle point on the optimal trace.
type Transition struct {
	Distance float64        `json:"distance"`
	Kind     TransitionKind `json:"kind"`
}

type paceState int

const (
	stateCruise paceState = iota
	stateAccel
	stateDecel
)

// detectTransitions scans speed with hysteresis. A brake transition is
// placed at the last speed peak once speed has dropped more than
// threshold below it; a throttle transition at the last trough once speed
// has risen more than threshold above it. The state may flip directly
// between accelerating and braking.
func detectTransitions(distance, speed []float64, threshold float64) []Transition {
	out := []Transition{}
	if len(speed) == 0 {
		return out
	}
	state := stateCruise
	peak, trough := 0, 0
	for i := 1; i < len(speed); i++ {
		v := speed[i]
		if state != stateDecel && v >= speed[peak] {
			peak = i
		}
		if state != stateAccel && v <= speed[trough] {
			trough = i
		}
		switch {
		case state != stateDecel && speed[peak]-v > threshold:
			out = append(out, Transition{Distance: distance[peak], Kind: TransitionBrake})
			state = stateDecel
			trough = i
		case state != stateAccel && v-speed[trough] > threshold:
			out = append(out, Transition{Distance: distance[trough], Kind: TransitionThrottle})
			state = stateAccel
			peak = i
		}
	}
	return out
}
