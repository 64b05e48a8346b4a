package validate

import (
	"errors"
)

// ErrMalicious rejects a whole submission without telling the client why.
var ErrMalicious = errors.New("invalid input detected")

// FieldError is the first failing field of a submission.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Input is one named field of a submission.
type Input struct {
	Name    string
	Label   string
	Type    Type
	Value   string
	Options []string
}

// Report is the outcome of validating a submission. Values always holds the
// sanitized projection, even when the submission is rejected.
type Report struct {
	Values      map[string]string
	FieldErrors []FieldError
	Threats     []string
}

// Err returns ErrMalicious when any signature matched, otherwise the first
// field error in input order, otherwise nil.
func (r Report) Err() error {
	if len(r.Threats) > 0 {
		return ErrMalicious
	}
	if len(r.FieldErrors) > 0 {
		fe := r.FieldErrors[0]
		return &fe
	}
	return nil
}

func (r Report) Valid() bool { return r.Err() == nil }

// Check validates every field independently, scans all raw values together
// and sanitizes each field.
func Check(inputs []Input) Report {
	rep := Report{Values: make(map[string]string, len(inputs))}
	raw := make([]string, 0, len(inputs))

	for _, in := range inputs {
		label := in.Label
		if label == "" {
			label = in.Name
		}
		if res := Field(in.Type, label, in.Value, in.Options); !res.Valid {
			rep.FieldErrors = append(rep.FieldErrors, FieldError{Field: in.Name, Message: res.Error})
		}
		raw = append(raw, in.Value)
		rep.Values[in.Name] = Sanitize(in.Type, in.Value, in.Options)
	}

	rep.Threats = Scan(raw...)
	return rep
}
