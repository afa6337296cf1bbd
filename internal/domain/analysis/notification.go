package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

// Notification is the inbound webhook payload from the acquisition backend.
type Notification struct {
	ClientID   string         `json:"client_id"`
	FlowID     string         `json:"flow_id"`
	EventType  string         `json:"event_type"`
	Timestamp  string         `json:"timestamp"`
	FlowName   string         `json:"flow_name"`
	FlowState  string         `json:"flow_state"`
	Username   string         `json:"username"`
	ClientInfo map[string]any `json:"client_info,omitempty"`
}

var rxIdentifier = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Validate checks shape only; whether the event qualifies is a separate filter.
func (n Notification) Validate() error {
	required := []struct {
		field, value string
	}{
		{"client_id", n.ClientID},
		{"flow_id", n.FlowID},
		{"flow_name", n.FlowName},
		{"flow_state", n.FlowState},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, r.field)
		}
	}
	if !rxIdentifier.MatchString(n.ClientID) {
		return fmt.Errorf("%w: invalid client_id format", ErrValidation)
	}
	if !rxIdentifier.MatchString(n.FlowID) {
		return fmt.Errorf("%w: invalid flow_id format", ErrValidation)
	}
	return nil
}
