package compliance

// Status is the compliance decision for one image
type Status string

const (
	StatusAccepted       Status = "ACCEPTED"
	StatusRejected       Status = "REJECTED"
	StatusReviewRequired Status = "REVIEW_REQUIRED"
	StatusError          Status = "ERROR"
)

// AllStatuses lists every status in report order
var AllStatuses = []Status{StatusAccepted, StatusRejected, StatusReviewRequired, StatusError}

// Confidence is how sure the model was. NONE only accompanies ERROR.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
	ConfidenceNone   Confidence = "NONE"
)

// AllConfidences lists every confidence level in report order
var AllConfidences = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone}

// Verdict is the judgment for one merchant record
type Verdict struct {
	Status       Status     `json:"status"`
	Confidence   Confidence `json:"confidence"`
	Reason       string     `json:"reason"`
	RawModelText string     `json:"raw_model_text,omitempty"`
	Violations   []string   `json:"violations,omitempty"`
}

// ErrorVerdict is the verdict for a record that could not be judged
func ErrorVerdict(detail string) Verdict {
	return Verdict{
		Status:     StatusError,
		Confidence: ConfidenceNone,
		Reason:     detail,
	}
}

// Judged reports whether the verdict came from a model decision
func (v Verdict) Judged() bool {
	return v.Status != StatusError
}
