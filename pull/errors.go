package pull

import "fmt"

// DenialReason classifies why a pull was denied.
type DenialReason string

// Denial reasons, in the order the orchestrator rules them out.
const (
	// PolicyRejected means the matched policy scope rejects the image
	// outright, before any artifact is considered.
	PolicyRejected DenialReason = "PolicyRejected"
	// NoSignature means the policy requires a signature and no artifact
	// was found in any configured store.
	NoSignature DenialReason = "NoSignature"
	// SchemeNotAllowed means artifacts exist, but none carries a scheme
	// the matched scope accepts.
	SchemeNotAllowed DenialReason = "SchemeNotAllowed"
	// SignatureRejected means at least one artifact was cryptographically
	// evaluated and refused, and none verified.
	SignatureRejected DenialReason = "SignatureRejected"
	// Infrastructure means the decision could not be carried out: trust
	// material or artifact stores were unreachable, or verification hit a
	// non-cryptographic fault. Denied, but retriable once the fault
	// clears.
	Infrastructure DenialReason = "Infrastructure"
)

// DeniedError is the only error AuthorizePull returns: the image may not
// be pulled, for the stated reason. The wrapped cause keeps the full
// failure detail for the operator.
type DeniedError struct {
	Reason DenialReason
	Ref    string
	Err    error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("pull of [%s] denied (%s): %v", e.Ref, e.Reason, e.Err)
}

func (e *DeniedError) Unwrap() error {
	return e.Err
}
