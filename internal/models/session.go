package models

import "time"

// Step is an enumerated stage of the qualification dialog.
type Step string

const (
	StepStart    Step = "START"
	StepMenu     Step = "MENU"
	StepUrgent   Step = "URGENT"
	StepHuman    Step = "HUMAN"
	StepType     Step = "TYPE"
	StepPriority Step = "PRIORITY"
	StepFamily   Step = "FAMILY"
	StepMayor75  Step = "MAYOR75"
	StepData     Step = "DATA"
	StepDone     Step = "DONE"
)

// DataKey names a qualification field accumulated in a session.
type DataKey string

const (
	DataKeyCoverageType DataKey = "coverage_type"
	DataKeyPriority     DataKey = "priority"
	DataKeyPlan         DataKey = "plan"
	DataKeyFamilyDetail DataKey = "family_detail"
	DataKeyElderOver75  DataKey = "elder_over_75" // "true", "false" or absent
	DataKeyPersonalData DataKey = "personal_data"
)

// Session is the per-contact dialog progress record.
type Session struct {
	ContactID string             `json:"contact_id"`
	Step      Step               `json:"step"`
	Data      map[DataKey]string `json:"data,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewSession returns a session in the START step with no collected data.
func NewSession(contactID string, now time.Time) *Session {
	return &Session{
		ContactID: contactID,
		Step:      StepStart,
		Data:      make(map[DataKey]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session so callers never share the data map.
func (s Session) Clone() Session {
	c := s
	c.Data = make(map[DataKey]string, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	return c
}
