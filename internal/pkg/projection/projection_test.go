package projection

import (
	"testing"

	apperrors "switchboard/internal/pkg/errors"
)

func TestAllowList_Parse(t *testing.T) {
	allow := NewAllowList("id", "name", "kind", "total_calls")

	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"empty means all", "", nil, false},
		{"single", "id", []string{"id"}, false},
		{"spaces and duplicates", " id, name ,id,", []string{"id", "name"}, false},
		{"unknown field", "id,auth_token", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := allow.Parse(tt.raw)
			if tt.wantErr {
				if !apperrors.Is(err, apperrors.KindInvalidInput) {
					t.Fatalf("Expected InvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Parse()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestProject(t *testing.T) {
	doc := map[string]any{"id": "reg_1", "name": "booking", "target_url": "https://x"}

	got := Project(doc, []string{"id", "name"})
	if len(got) != 2 || got["id"] != "reg_1" || got["name"] != "booking" {
		t.Errorf("Unexpected projection: %v", got)
	}
	if _, ok := got["target_url"]; ok {
		t.Error("Expected target_url to be dropped")
	}

	if all := Project(doc, nil); len(all) != 3 {
		t.Errorf("Expected nil fields to keep every key, got %v", all)
	}
}
