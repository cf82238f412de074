package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// WebhookStatusStarted is the only status that marks a booking as ready.
// Any other status is treated as "server emptied/closed".
const WebhookStatusStarted = "started"

var eventValidator = validator.New()

// FlexString accepts a JSON string or number and keeps its textual form.
// The provisioning backend is not consistent about quoting ports.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// UnmarshalJSON accepts the booking ID either as a number or as a numeric string
func (id *BookingID) UnmarshalJSON(data []byte) error {
	var raw FlexString
	if err := raw.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid bookingID: %w", err)
	}
	if raw == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bookingID %q: %w", string(raw), err)
	}
	*id = BookingID(n)
	return nil
}

// ServerDetails carries the connection information of a started server
type ServerDetails struct {
	Address    string     `json:"address"`
	Port       FlexString `json:"port"`
	STVPort    FlexString `json:"stv_port"`
	SDRIPv4    string     `json:"sdr_ipv4"`
	SDRPort    FlexString `json:"sdr_port"`
	SVPassword string     `json:"sv_password"`
	Instance   string     `json:"instance"`
}

// ConnectString is the in-game console command for a direct connection
func (d ServerDetails) ConnectString() string {
	return fmt.Sprintf("connect %s:%s; password \"%s\"", d.Address, d.Port, d.SVPassword)
}

// SDRConnectString is the console command for a connection through the relay network
func (d ServerDetails) SDRConnectString() string {
	return fmt.Sprintf("connect %s:%s; password \"%s\"", d.SDRIPv4, d.SDRPort, d.SVPassword)
}

// STVConnectString is the console command for SourceTV spectators
func (d ServerDetails) STVConnectString() string {
	return fmt.Sprintf("connect %s:%s", d.Address, d.STVPort)
}

// WebhookEvent is the parsed body the provisioning backend posts to /webhook
type WebhookEvent struct {
	BookingID BookingID      `json:"bookingID" validate:"required,gt=0"`
	Status    string         `json:"status" validate:"required"`
	Details   *ServerDetails `json:"details,omitempty"`
	Instance  string         `json:"instance,omitempty"` // Older backends send it next to details
}

// Validate checks the required fields of the event
func (e *WebhookEvent) Validate() error {
	if err := eventValidator.Struct(e); err != nil {
		return fmt.Errorf("invalid webhook event: %w", err)
	}
	return nil
}

// IsStarted reports whether the event announces a started server
func (e *WebhookEvent) IsStarted() bool {
	return e.Status == WebhookStatusStarted
}

// ServerDetails returns the connection details with the instance name resolved
func (e *WebhookEvent) ServerDetails() ServerDetails {
	var details ServerDetails
	if e.Details != nil {
		details = *e.Details
	}
	if details.Instance == "" {
		details.Instance = e.Instance
	}
	return details
}
