package council

import "fmt"

// Stage is a state of the session state machine. Stages are ordered; the
// only legal transitions are to the immediate successor, FOLLOWUP to itself,
// and any stage back to INIT through reset.
type Stage int

const (
	StageInit Stage = iota
	StageInvestigate
	StageCouncil
	StageVerdict
	StageFollowUp
)

var stageNames = [...]string{"INIT", "INVESTIGATE", "COUNCIL", "VERDICT", "FOLLOWUP"}

// String returns the upper-case stage name.
func (s Stage) String() string {
	if s < StageInit || s > StageFollowUp {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// AwaitsInput reports whether the stage waits for user input rather than
// advancing on its own.
func (s Stage) AwaitsInput() bool {
	return s == StageInit || s == StageInvestigate || s == StageFollowUp
}

// MarshalText encodes the stage as its name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(b []byte) error {
	st, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStage returns the stage with the given name.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return StageInit, fmt.Errorf("council: unknown stage %q", name)
}

// canAdvance reports whether from → to is a legal forward transition.
func canAdvance(from, to Stage) bool {
	if from == StageFollowUp {
		return to == StageFollowUp
	}
	return to == from+1
}
