package resilience

import "time"

// Error classes reported by ClassifyError.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// Failure records one item a bulk operation could not process, so the caller
// can report it and resubmit later.
type Failure struct {
	ItemID    string    `json:"item_id"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"`
	FailedAt  time.Time `json:"failed_at"`
}

// NewFailure classifies err and stamps the failure time.
func NewFailure(itemID, operation string, err error, now time.Time) Failure {
	return Failure{
		ItemID:    itemID,
		Operation: operation,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		FailedAt:  now.UTC(),
	}
}

// Retryable reports whether resubmitting the item may succeed.
func (f Failure) Retryable() bool {
	return f.ErrorType == ErrorTransient
}

// ClassifyError categorizes an error as transient or permanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
