package live

import (
	"encoding/json"
	"testing"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"truncated mid value", `{"phase": "main", "engagement": "hi`},
		{"truncated after comma", `{"phase": "main",`},
		{"truncated after colon", `{"phase":`},
		{"unclosed nested object", `{"reminder_plan": {"should_deliver": true, "which": "pills"`},
		{"unclosed array", `{"topics": ["garden", "family"`},
		{"prose wrapped", "Here you go:\n" + `{"phase": "main"}` + "\nHope that helps!"},
		{"escaped quote in string", `{"tone_guidance": "say \"well done\" warmly`},
		{"already valid", `{"phase": "main", "engagement": "high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired := RepairJSON(tt.in)
			var out map[string]any
			if err := json.Unmarshal([]byte(repaired), &out); err != nil {
				t.Errorf("RepairJSON(%q) = %q, still unparseable: %v", tt.in, repaired, err)
			}
		})
	}
}

func TestRepairJSON_PreservesValues(t *testing.T) {
	repaired := RepairJSON(`{"phase": "winding_down", "engagement": "low"`)
	var out struct {
		Phase      string `json:"phase"`
		Engagement string `json:"engagement"`
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("unparseable: %v", err)
	}
	if out.Phase != "winding_down" || out.Engagement != "low" {
		t.Errorf("values mangled: %+v", out)
	}
}

func TestRepairJSON_NoObject(t *testing.T) {
	in := "no json here at all"
	if got := RepairJSON(in); got != in {
		t.Errorf("expected input returned unchanged, got %q", got)
	}
}
