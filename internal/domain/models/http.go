package models

// Request shapes for the exposed API surface. Validation tags are
// enforced by pkg/http.ReadAndValidateRequest.

type SubscribeRequest struct {
	Symbol   string `json:"symbol" query:"symbol" validate:"required"`
	Exchange string `json:"exchange" query:"exchange"`
	Token    string `json:"token" query:"token"`
	Mode     int    `json:"mode" query:"mode" default:"2" validate:"min=1,max=4"`
}

type UnsubscribeRequest struct {
	Symbol string `json:"symbol" query:"symbol" validate:"required"`
}

type TicksRequest struct {
	Symbol string `json:"symbol" query:"symbol" validate:"required"`
	Limit  int    `json:"limit" query:"limit" default:"100" validate:"min=1,max=1000"`
}

// FeedStatus is the connection status snapshot returned to the web layer.
type FeedStatus struct {
	State             string `json:"state"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastError         string `json:"last_error,omitempty"`
	ErrorCount        int    `json:"error_count"`
	LastDataTime      string `json:"last_data_time,omitempty"`
	SubscribedCount   int    `json:"subscribed_count"`
}
