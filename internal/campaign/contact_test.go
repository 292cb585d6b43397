package campaign

import "testing"

func TestContactField(t *testing.T) {
	c := &Contact{Fields: map[string]string{"Numero": "111", "nombre": "Ana"}}

	if got := c.Field("numero"); got != "111" {
		t.Errorf("expected case-insensitive match, got %q", got)
	}
	if got := c.Field("nombre"); got != "Ana" {
		t.Errorf("expected exact match, got %q", got)
	}
	if got := c.Field("correo"); got != "" {
		t.Errorf("expected empty for missing field, got %q", got)
	}
}

func TestContactLabel(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   string
	}{
		{"nombre preferred", map[string]string{"Nombre": "Ana", "Numero": "111"}, "Ana"},
		{"name fallback", map[string]string{"Name": "Bea", "Numero": "111"}, "Bea"},
		{"address fallback", map[string]string{"Numero": "111"}, "111"},
		{"unknown", map[string]string{"Otro": "x"}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contact{Fields: tt.fields}
			if got := c.Label("numero"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestContactClone(t *testing.T) {
	c := &Contact{
		Fields: map[string]string{"Numero": "111"},
		Status: StatusSent,
		SentAt: "10:00:00",
	}
	clone := c.Clone()
	clone.Fields["Numero"] = "999"
	clone.Status = StatusError

	if c.Fields["Numero"] != "111" || c.Status != StatusSent {
		t.Error("clone shares state with original")
	}
}
