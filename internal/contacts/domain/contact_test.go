package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestContact_Normalize(t *testing.T) {
	c := Contact{Name: "  Ahmad ", Phone: " +60123456789", Category: "  "}
	c.Normalize()
	if c.Name != "Ahmad" || c.Phone != "+60123456789" {
		t.Errorf("trimmed = %q %q", c.Name, c.Phone)
	}
	if c.Category != DefaultCategory {
		t.Errorf("Category = %q, want %q", c.Category, DefaultCategory)
	}

	c = Contact{Name: "x", Category: "Client"}
	c.Normalize()
	if c.Category != "Client" {
		t.Errorf("Category = %q, want Client", c.Category)
	}
}

func TestListOptions_Normalized(t *testing.T) {
	o := ListOptions{Offset: -5, Search: " lee "}.Normalized()
	if o.Limit != DefaultListLimit || o.Offset != 0 || o.Search != "lee" {
		t.Errorf("Normalized = %+v", o)
	}
	o = ListOptions{Limit: 10, Offset: 20}.Normalized()
	if o.Limit != 10 || o.Offset != 20 {
		t.Errorf("Normalized = %+v", o)
	}
}

func TestContact_JSONOmitsServerFields(t *testing.T) {
	b, err := json.Marshal(Contact{Name: "Sarah"})
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"id"`, `"created_at"`, `"updated_at"`, `"follow_up_date"`} {
		if strings.Contains(string(b), field) {
			t.Errorf("%s should be omitted from %s", field, b)
		}
	}
}
