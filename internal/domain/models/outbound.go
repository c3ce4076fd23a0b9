package models

// OutboundMessageRequest is a text message pushed to a WhatsApp number, such
// as the scheduled balance report.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
