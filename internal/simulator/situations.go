package simulator

// Situation is one runway-occupancy fact the facility can report.
type Situation string

// Takeoff situations.
const (
	TakeoffClear         Situation = "clear"
	TakeoffOccupied      Situation = "occupied"
	TakeoffLineUpAndWait Situation = "line_up_and_wait"
)

// Landing situations.
const (
	LandingClear          Situation = "clear"
	LandingSequenced      Situation = "sequenced"
	LandingExtendDownwind Situation = "extend_downwind"
	LandingBlocked        Situation = "blocked"
)

// situationSpec fixes a situation's prior weight and the set it may
// improve to on the second query of a phase visit. An empty improvesTo
// means the situation is already optimal.
type situationSpec struct {
	weight     int
	improvesTo []Situation
}

// Specs are keyed per track. Order matters for the cumulative-weight
// draw, so each track also carries a fixed iteration order.
var (
	takeoffOrder = []Situation{TakeoffClear, TakeoffOccupied, TakeoffLineUpAndWait}
	takeoffSpecs = map[Situation]situationSpec{
		TakeoffClear:         {weight: 50},
		TakeoffOccupied:      {weight: 30, improvesTo: []Situation{TakeoffClear, TakeoffLineUpAndWait}},
		TakeoffLineUpAndWait: {weight: 20, improvesTo: []Situation{TakeoffClear}},
	}

	landingOrder = []Situation{LandingClear, LandingSequenced, LandingExtendDownwind, LandingBlocked}
	landingSpecs = map[Situation]situationSpec{
		LandingClear:          {weight: 40},
		LandingSequenced:      {weight: 30, improvesTo: []Situation{LandingClear}},
		LandingExtendDownwind: {weight: 20, improvesTo: []Situation{LandingSequenced, LandingClear}},
		LandingBlocked:        {weight: 10, improvesTo: []Situation{LandingClear}},
	}
)

// restrict filters candidates down to the phase-valid subset. An empty
// valid list leaves the track unrestricted.
func restrict(candidates []Situation, valid []string) []Situation {
	if len(valid) == 0 {
		return candidates
	}
	allowed := make(map[Situation]bool, len(valid))
	for _, v := range valid {
		allowed[Situation(v)] = true
	}
	out := make([]Situation, 0, len(candidates))
	for _, c := range candidates {
		if allowed[c] {
			out = append(out, c)
		}
	}
	return out
}
