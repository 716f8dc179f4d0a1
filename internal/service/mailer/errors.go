package mailer

import "fmt"

// Error codes for the sending pipeline.
const (
	ErrCodeRenderFailed  = "RENDER_FAILED"
	ErrCodeScheduling    = "SCHEDULING_FAILED"
	ErrCodeTransport     = "TRANSPORT_FAILED"
	ErrCodeRecordUpdate  = "RECORD_UPDATE_FAILED"
	ErrCodeCampaignState = "CAMPAIGN_STATE_FAILED"
)

// SendingError is a classified failure inside the sending pipeline.
type SendingError struct {
	Code       string
	CampaignID int64
	Err        error
}

func (e *SendingError) Error() string {
	return fmt.Sprintf("%s (campaign %d): %v", e.Code, e.CampaignID, e.Err)
}

func (e *SendingError) Unwrap() error { return e.Err }

func newSendingError(code string, campaignID int64, err error) *SendingError {
	return &SendingError{Code: code, CampaignID: campaignID, Err: err}
}
