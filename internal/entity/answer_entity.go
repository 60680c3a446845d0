package entity

type GuardrailReason string

const (
	GuardrailReasonNone              GuardrailReason = "none"
	GuardrailReasonDiagnosis         GuardrailReason = "diagnosis_request"
	GuardrailReasonPrescription      GuardrailReason = "prescription_request"
	GuardrailReasonTreatmentDecision GuardrailReason = "treatment_decision_request"
)

type GuardrailVerdict struct {
	Blocked          bool
	Reason           GuardrailReason
	StandardResponse string
	MatchedPattern   string
}

type Citation struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
}

type Answer struct {
	Text               string
	Citations          []Citation
	Abstained          bool
	GuardrailTriggered bool
}

// HistoryMessage is one prior conversation turn supplied by the client.
type HistoryMessage struct {
	Role    string
	Content string
}
