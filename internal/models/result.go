package models

// ResultKind discriminates provider stream output.
type ResultKind int

const (
	// ResultInterim carries not-yet-final partial segments.
	ResultInterim ResultKind = iota
	// ResultFinal carries finalized segments.
	ResultFinal
	// ResultFailure carries a provider error; Segments is empty.
	ResultFailure
)

// String returns the string representation of the result kind.
func (k ResultKind) String() string {
	switch k {
	case ResultInterim:
		return "interim"
	case ResultFinal:
		return "final"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ProviderResult is a transient value produced by a provider call.
// It is never persisted directly; the controller filters and batches
// the segments it carries.
type ProviderResult struct {
	Kind     ResultKind
	Segments []TranscriptionSegment
	Err      error
}

// InterimResult wraps segments as an interim result.
func InterimResult(segments ...TranscriptionSegment) ProviderResult {
	return ProviderResult{Kind: ResultInterim, Segments: segments}
}

// FinalResult wraps segments as a final result.
func FinalResult(segments ...TranscriptionSegment) ProviderResult {
	return ProviderResult{Kind: ResultFinal, Segments: segments}
}

// FailureResult wraps a provider error.
func FailureResult(err error) ProviderResult {
	return ProviderResult{Kind: ResultFailure, Err: err}
}
