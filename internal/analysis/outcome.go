package analysis

import "boletin-backend/internal/faults"

// Outcome is the result of one analysis attempt: either a usable body or a
// classified failure with a sentinel error body. Callers must check Failed
// before treating the body as valid analysis data.
type Outcome struct {
	Body Body
	Err  *faults.Envelope
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool { return o.Err != nil }

// Succeeded wraps a usable body.
func Succeeded(body Body) Outcome {
	return Outcome{Body: body}
}

// Failure pairs a classified failure with the sentinel error body that
// stands in for the analysis in responses. The sentinel is a first-class
// value, not an exception; it is never persisted.
func Failure(env *faults.Envelope, message string) Outcome {
	return Outcome{
		Body: ErrorBody(message),
		Err:  env,
	}
}

// ErrorBody builds the sentinel body returned when analysis fails.
func ErrorBody(message string) Body {
	return Body{
		Summary:         "Error in analysis: " + message,
		Changes:         []Change{},
		EstimatedImpact: "could not be determined due to error",
		AffectedAreas:   []string{"error"},
		Error:           true,
		ErrorMessage:    message,
	}
}
