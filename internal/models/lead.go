package models

import (
	"encoding/json"
	"time"
)

// Coverage types offered by the affiliation menu.
const (
	CoverageIndividual = "Individual"
	CoverageFamily     = "Familiar"
	CoverageElder      = "Mayor"
)

// Plan labels assigned at the end of each branch.
const (
	PlanIndividual = "Plan Individual BIO"
	PlanFamily     = "Plan Familiar BIO"
	PlanElder      = "Plan Mayor BIO"
)

// Priorities a contact can pick on the individual path.
const (
	PriorityCosts    = "Costos"
	PrioritySupport  = "Acompañamiento"
	PriorityEcologic = "Enfoque ecológico"
)

// LeadTimestampLayout is the ISO-8601 layout used on the wire (UTC, milliseconds).
const LeadTimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Lead is the immutable record produced when a dialog reaches DONE.
type Lead struct {
	ID           string
	Phone        string
	CoverageType string
	Plan         string
	Priority     string // individual path only
	ElderOver75  *bool  // elder path only; nil when the question was never asked
	FamilyDetail string // family path only
	PersonalData string
	CreatedAt    time.Time
}

// leadWire is the JSON shape expected by the lead sink endpoint.
type leadWire struct {
	ID           string      `json:"id,omitempty"`
	Phone        string      `json:"telefono"`
	CoverageType string      `json:"tipo"`
	Plan         string      `json:"plan"`
	Priority     string      `json:"prioridad"`
	ElderOver75  interface{} `json:"mayor75"`
	FamilyDetail string      `json:"detalle_familia"`
	PersonalData string      `json:"datos"`
	Timestamp    string      `json:"timestamp"`
}

// MarshalJSON encodes the lead for the sink. An unknown elder flag is sent as "".
func (l Lead) MarshalJSON() ([]byte, error) {
	w := leadWire{
		ID:           l.ID,
		Phone:        l.Phone,
		CoverageType: l.CoverageType,
		Plan:         l.Plan,
		Priority:     l.Priority,
		ElderOver75:  "",
		FamilyDetail: l.FamilyDetail,
		PersonalData: l.PersonalData,
		Timestamp:    l.CreatedAt.UTC().Format(LeadTimestampLayout),
	}
	if l.ElderOver75 != nil {
		w.ElderOver75 = *l.ElderOver75
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the sink wire format back into a Lead.
func (l *Lead) UnmarshalJSON(data []byte) error {
	var w leadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = Lead{
		ID:           w.ID,
		Phone:        w.Phone,
		CoverageType: w.CoverageType,
		Plan:         w.Plan,
		Priority:     w.Priority,
		FamilyDetail: w.FamilyDetail,
		PersonalData: w.PersonalData,
	}
	if b, ok := w.ElderOver75.(bool); ok {
		l.ElderOver75 = &b
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return err
		}
		l.CreatedAt = ts
	}
	return nil
}
