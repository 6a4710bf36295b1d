package intent

import "testing"

func TestPatternClassifier_IsUrgent(t *testing.T) {
	c := NewPatternClassifier()

	tests := []struct {
		text string
		want bool
	}{
		{"URGENCIA", true},
		{"es urgente por favor", true},
		{"falleció mi papá", true},
		{"Fallecimiento", true},
		{"murio mi abuela", true},
		{"MURIÓ", true},
		{"necesito ayuda ahora", true},
		{"atención 24 hs", true},
		{"Emergencia", true},
		{"hola", false},
		{"1", false},
		{"4 personas, zona norte", false},
		{"Juan Pérez, DNI 12345678, 01/01/1990", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.IsUrgent(tt.text); got != tt.want {
			t.Errorf("IsUrgent(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPatternClassifier_CustomTerms(t *testing.T) {
	c := NewPatternClassifier("socorro", " ", "a.b")

	if !c.IsUrgent("SOCORRO!") {
		t.Error("expected custom term to match case-insensitively")
	}
	if c.IsUrgent("urgencia") {
		t.Error("default terms should not apply when custom terms are given")
	}
	if c.IsUrgent("axb") {
		t.Error("terms must be matched literally, not as regular expressions")
	}
	if !c.IsUrgent("a.b") {
		t.Error("expected literal term with metacharacters to match")
	}
}

func TestPatternClassifier_ImplementsClassifier(t *testing.T) {
	var _ Classifier = (*PatternClassifier)(nil)
}

func TestPatternClassifier_BlankTermsUseDefaults(t *testing.T) {
	c := NewPatternClassifier("", "  ")
	if c.IsUrgent("hola") {
		t.Error("blank terms must not match every message")
	}
	if !c.IsUrgent("es una urgencia") {
		t.Error("blank terms should fall back to the default urgency terms")
	}
}
