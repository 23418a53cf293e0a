package trials

// TriggerBase is the lowest stimulus trigger code.
const TriggerBase = 10

// TriggerCode encodes a stimulus and its reference flag for the external
// synchronization device: 10 + stim + 2*reference.
func TriggerCode(stim int, reference bool) int {
	code := TriggerBase + stim
	if reference {
		code += 2
	}
	return code
}

// Response is the answer expected from the subject on a trial.
type Response string

const (
	// ResponseAny is accepted on the first trial of a block, where there is
	// nothing in memory to compare with.
	ResponseAny       Response = "any"
	ResponseSame      Response = "same"
	ResponseDifferent Response = "different"
)

// ExpectedResponse returns the correct answer for the trial at zero-based
// position i within its block.
func ExpectedResponse(i int, isSame bool) Response {
	switch {
	case i == 0:
		return ResponseAny
	case isSame:
		return ResponseSame
	default:
		return ResponseDifferent
	}
}

// Accepts reports whether answer is correct for an expected response.
func (r Response) Accepts(answer Response) bool {
	if r == ResponseAny {
		return answer == ResponseSame || answer == ResponseDifferent
	}
	return r == answer
}
