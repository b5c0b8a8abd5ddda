package models

// OutcomeRecord is the per-item result unit inside a BatchResponse.
// ID and Name are arrays because some remote resources resolve to several
// identifiers per submitted form (a property create also returns its account).
type OutcomeRecord struct {
	ID                  []string `json:"id,omitempty"`
	Name                []string `json:"name,omitempty"`
	Success             bool     `json:"success"`
	NotFound            bool     `json:"notFound,omitempty"`
	FeatureLimitReached bool     `json:"limitReached,omitempty"`
	Message             string   `json:"message,omitempty"`
}

// BatchResponse is the single structured object returned to the caller for one
// batch invocation. Success is true only when every submitted item succeeded.
type BatchResponse struct {
	Success       bool            `json:"success"`
	LimitReached  bool            `json:"limitReached"`
	NotFoundError bool            `json:"notFoundError"`
	Errors        []string        `json:"errors"`
	Results       []OutcomeRecord `json:"results"`
	Message       string          `json:"message"`
}
