package proxy

import "fmt"

// Kind classifies the outcome of a completion call.
type Kind string

const (
	KindOK                Kind = "ok"
	KindMissingCredential Kind = "missing_credential"
	KindUpstreamError     Kind = "upstream_error"
	KindBlocked           Kind = "blocked"
	KindTransportError    Kind = "transport_error"
)

// Result is the outcome of Complete. Text is set only for KindOK; Detail holds
// the provider message, block reason, or transport error for the other kinds.
type Result struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (r Result) OK() bool { return r.Kind == KindOK }

// Message renders the single user-facing text for the result.
func (r Result) Message() string {
	switch r.Kind {
	case KindOK:
		return r.Text
	case KindMissingCredential:
		return "The generative API key is not configured."
	case KindUpstreamError:
		return fmt.Sprintf("The generative API returned an error: %s", r.Detail)
	case KindBlocked:
		return fmt.Sprintf("The response was blocked. Reason: %s", r.Detail)
	case KindTransportError:
		return fmt.Sprintf("Could not reach the generative API: %s", r.Detail)
	}
	return fmt.Sprintf("Unexpected result %q.", r.Kind)
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

// generateResponse models the fields of a generateContent response that
// Complete inspects. An error envelope replaces the rest on failure.
type generateResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
