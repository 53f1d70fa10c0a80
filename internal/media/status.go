package media

import "fmt"

// Status is the lifecycle state of an externally encoded asset.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusEncoding   Status = "encoding"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition may be applied.
func (status Status) IsTerminal() bool {
	return status == StatusReady || status == StatusFailed
}

// Source identifies which input channel produced a transition.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
)

// ErrUnknownStatusCode reports a provider status code outside the fixed table.
var ErrUnknownStatusCode = fmt.Errorf("media: unknown provider status code")

// MapStatusCode translates the encode provider's numeric status codes into
// asset states. The table is fixed by the provider's webhook contract.
func MapStatusCode(code int) (Status, error) {
	switch code {
	case 0, 7:
		return StatusQueued, nil
	case 1:
		return StatusProcessing, nil
	case 2, 4:
		return StatusEncoding, nil
	case 3:
		return StatusReady, nil
	case 5, 8:
		return StatusFailed, nil
	case 6:
		return StatusUploading, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownStatusCode, code)
	}
}

func failureReasonForCode(code int) string {
	switch code {
	case 5:
		return "encoding failed"
	case 8:
		return "upload failed"
	default:
		return fmt.Sprintf("provider reported failure (code %d)", code)
	}
}
