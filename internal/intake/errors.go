package intake

// ValidationError explains why an inbound message or payload was rejected
// before reaching the orchestration engine.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "intake validation failed: " + e.Reason }
