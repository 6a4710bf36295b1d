// Package flow implements the intake dialog as an explicit state-transition table.
//
// The Engine is a pure function of (session, input): it never performs I/O. Callers
// persist the returned session, deliver the reply and hand any produced lead to a sink.
package flow

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/intent"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/google/uuid"
)

// affirmativePattern matches "si" or "sí" anywhere in normalized text, so "sii", "sip"
// and "síííí" count as yes.
var affirmativePattern = regexp.MustCompile(`si|sí`)

// Input is one inbound message prepared for classification.
type Input struct {
	Raw        string // trimmed, casing and punctuation preserved; stored into lead fields
	Normalized string // trimmed and lowercased; used for routing
}

// NewInput trims text and derives its normalized form.
func NewInput(text string) Input {
	raw := strings.TrimSpace(text)
	return Input{Raw: raw, Normalized: strings.ToLower(raw)}
}

// Outcome is the result of advancing a session by one message.
type Outcome struct {
	Session models.Session
	Reply   string
	Lead    *models.Lead // non-nil only on the DATA -> DONE transition
	Urgent  bool         // the urgency interrupt preempted the step logic
}

// rule is one row of the transition table: when the input matches, move to next,
// apply the data effect and reply.
type rule struct {
	when  func(Input) bool
	next  models.Step
	reply string
	apply func(data map[models.DataKey]string, in Input)
}

// fallback handles URGENT, HUMAN, DONE and any unrecognized step.
var fallback = rule{when: anyInput, next: models.StepMenu, reply: MsgMenuFallback}

// Engine advances dialog sessions.
type Engine struct {
	classifier intent.Classifier
	table      map[models.Step][]rule
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for session and lead timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the lead id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an Engine. A nil classifier falls back to the default urgency terms.
func NewEngine(classifier intent.Classifier, opts ...Option) *Engine {
	if classifier == nil {
		classifier = intent.NewPatternClassifier()
	}
	e := &Engine{
		classifier: classifier,
		table:      transitions(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Advance applies one inbound message to a session and returns the next session value.
// The input session is never modified.
func (e *Engine) Advance(current models.Session, in Input) Outcome {
	next := current.Clone()
	next.UpdatedAt = e.now()

	// A completed session is recycled on the next message.
	if current.Step == models.StepDone {
		next.Data = make(map[models.DataKey]string)
	}

	if e.classifier.IsUrgent(in.Normalized) {
		next.Step = models.StepUrgent
		slog.Debug("Engine.Advance: urgency interrupt", "contact", current.ContactID, "from", current.Step)
		return Outcome{Session: next, Reply: MsgUrgentInterrupt, Urgent: true}
	}

	r := e.match(current.Step, in)
	if r.apply != nil {
		r.apply(next.Data, in)
	}
	next.Step = r.next
	slog.Debug("Engine.Advance: transition", "contact", current.ContactID, "from", current.Step, "to", next.Step)

	out := Outcome{Session: next, Reply: r.reply}
	if next.Step == models.StepDone {
		lead := e.buildLead(next)
		out.Lead = &lead
	}
	return out
}

// match returns the first rule of the step's row whose condition holds.
func (e *Engine) match(step models.Step, in Input) rule {
	for _, r := range e.table[step] {
		if r.when(in) {
			return r
		}
	}
	return fallback
}

func (e *Engine) buildLead(s models.Session) models.Lead {
	lead := models.Lead{
		ID:           e.newID(),
		Phone:        s.ContactID,
		CoverageType: s.Data[models.DataKeyCoverageType],
		Plan:         s.Data[models.DataKeyPlan],
		Priority:     s.Data[models.DataKeyPriority],
		FamilyDetail: s.Data[models.DataKeyFamilyDetail],
		PersonalData: s.Data[models.DataKeyPersonalData],
		CreatedAt:    s.UpdatedAt,
	}
	switch s.Data[models.DataKeyElderOver75] {
	case "true":
		v := true
		lead.ElderOver75 = &v
	case "false":
		v := false
		lead.ElderOver75 = &v
	}
	return lead
}

// transitions builds the dialog table. Rows are evaluated top to bottom; the last
// rule of each row accepts any input.
func transitions() map[models.Step][]rule {
	return map[models.Step][]rule{
		models.StepStart: {
			{when: anyInput, next: models.StepMenu, reply: MsgWelcomeMenu},
		},
		models.StepMenu: {
			{when: prefix("2"), next: models.StepUrgent, reply: MsgUrgentMenu},
			{when: prefix("3"), next: models.StepHuman, reply: MsgHumanAdvisor},
			{when: anyInput, next: models.StepType, reply: MsgCoverageTarget},
		},
		models.StepType: {
			{when: prefix("1"), next: models.StepPriority, reply: MsgAskPriority, apply: set(models.DataKeyCoverageType, models.CoverageIndividual)},
			{when: prefix("2"), next: models.StepFamily, reply: MsgAskFamily, apply: set(models.DataKeyCoverageType, models.CoverageFamily)},
			{when: anyInput, next: models.StepMayor75, reply: MsgAskElder, apply: set(models.DataKeyCoverageType, models.CoverageElder)},
		},
		models.StepPriority: {
			{when: prefix("1"), next: models.StepData, reply: MsgPlanIndividual, apply: choosePriority(models.PriorityCosts)},
			{when: prefix("2"), next: models.StepData, reply: MsgPlanIndividual, apply: choosePriority(models.PrioritySupport)},
			{when: anyInput, next: models.StepData, reply: MsgPlanIndividual, apply: choosePriority(models.PriorityEcologic)},
		},
		models.StepFamily: {
			{when: anyInput, next: models.StepData, reply: MsgPlanFamily, apply: func(data map[models.DataKey]string, in Input) {
				data[models.DataKeyFamilyDetail] = in.Raw
				data[models.DataKeyPlan] = models.PlanFamily
			}},
		},
		models.StepMayor75: {
			{when: affirmative, next: models.StepData, reply: MsgPlanElder, apply: chooseElder("true")},
			{when: anyInput, next: models.StepData, reply: MsgPlanElder, apply: chooseElder("false")},
		},
		models.StepData: {
			{when: anyInput, next: models.StepDone, reply: MsgClosing, apply: func(data map[models.DataKey]string, in Input) {
				data[models.DataKeyPersonalData] = in.Raw
			}},
		},
	}
}

func anyInput(Input) bool { return true }

func prefix(p string) func(Input) bool {
	return func(in Input) bool { return strings.HasPrefix(in.Normalized, p) }
}

func affirmative(in Input) bool {
	return affirmativePattern.MatchString(in.Normalized)
}

func set(key models.DataKey, value string) func(map[models.DataKey]string, Input) {
	return func(data map[models.DataKey]string, _ Input) { data[key] = value }
}

func choosePriority(priority string) func(map[models.DataKey]string, Input) {
	return func(data map[models.DataKey]string, _ Input) {
		data[models.DataKeyPriority] = priority
		data[models.DataKeyPlan] = models.PlanIndividual
	}
}

func chooseElder(flag string) func(map[models.DataKey]string, Input) {
	return func(data map[models.DataKey]string, _ Input) {
		data[models.DataKeyElderOver75] = flag
		data[models.DataKeyPlan] = models.PlanElder
	}
}
