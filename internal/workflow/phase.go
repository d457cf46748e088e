// internal/workflow/phase.go
package workflow

import "fmt"

// Phase is one step of the guided selection workflow.
type Phase string

const (
	PhaseIdle                  Phase = "Idle"
	PhaseCategoryChosen        Phase = "CategoryChosen"
	PhaseSubJurisdictionChosen Phase = "SubJurisdictionChosen"
	PhaseSubRegionChosen       Phase = "SubRegionChosen"
	PhaseIdentifierEntered     Phase = "IdentifierEntered"
	PhaseFollowUpTriggered     Phase = "FollowUpTriggered"
	PhaseCompleted             Phase = "Completed"
	PhaseFailed                Phase = "Failed"
)

var allPhases = [...]Phase{
	PhaseIdle,
	PhaseCategoryChosen,
	PhaseSubJurisdictionChosen,
	PhaseSubRegionChosen,
	PhaseIdentifierEntered,
	PhaseFollowUpTriggered,
	PhaseCompleted,
	PhaseFailed,
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	return p.index() >= 0
}

// IsTerminal reports whether no forward trigger leaves p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted
}

func (p Phase) index() int {
	for i, q := range allPhases {
		if q == p {
			return i
		}
	}
	return -1
}

// Trigger is an external signal that asks the session to advance.
type Trigger string

const (
	TriggerChooseCategory        Trigger = "choose_category"
	TriggerChooseSubJurisdiction Trigger = "choose_sub_jurisdiction"
	TriggerChooseSubRegion       Trigger = "choose_sub_region"
	TriggerSubmitIdentifier      Trigger = "submit_identifier"
	TriggerRequestFollowUp       Trigger = "request_follow_up"
	TriggerCompleteFollowUp      Trigger = "complete_follow_up"

	// Non-forward signals, recorded in the audit trail only.
	TriggerSignIn Trigger = "sign_in"
	TriggerBack   Trigger = "go_back"
	TriggerReset  Trigger = "reset"
)

// viewFlags holds one visibility flag per phase. It is only ever replaced whole,
// so a flag can never outlive the phase that set it.
type viewFlags [len(allPhases)]bool

// flagsFor returns the flag set in which only p's view is visible.
func flagsFor(p Phase) viewFlags {
	var f viewFlags
	if i := p.index(); i >= 0 {
		f[i] = true
	}
	return f
}

// active returns the single visible phase, or an error if zero or several flags are set.
func (f viewFlags) active() (Phase, error) {
	var (
		found Phase
		count int
	)
	for i, on := range f {
		if on {
			found = allPhases[i]
			count++
		}
	}
	if count != 1 {
		return "", fmt.Errorf("view flags must have exactly one visible phase, found %d", count)
	}
	return found, nil
}

// asMap exposes the flags keyed by phase.
func (f viewFlags) asMap() map[Phase]bool {
	m := make(map[Phase]bool, len(f))
	for i, on := range f {
		m[allPhases[i]] = on
	}
	return m
}
