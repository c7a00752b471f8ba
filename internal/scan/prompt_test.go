package scan

import (
	"strings"
	"testing"

	"github.com/kursbuero/kursd/internal/catalog"
)

func TestSystemPromptListsSchemaFields(t *testing.T) {
	p := systemPrompt(catalog.Courses)

	for _, key := range []string{"titel", "startdatum", "preis", "dozent", "raum"} {
		if !strings.Contains(p, `"`+key+`"`) {
			t.Errorf("prompt missing field %q", key)
		}
	}
	if !strings.Contains(p, "YYYY-MM-DD") {
		t.Error("prompt missing date format hint")
	}
	if !strings.Contains(p, "Vor- und Nachname") {
		t.Error("prompt missing person name hint for dozent")
	}
}

func TestSystemPromptOmitsOtherCollections(t *testing.T) {
	p := systemPrompt(catalog.Rooms)
	if strings.Contains(p, `"titel"`) {
		t.Error("rooms prompt lists course fields")
	}
	if !strings.Contains(p, `"raumname"`) {
		t.Error("rooms prompt missing raumname")
	}
}

func TestExtractionSchemaRequiresAllFields(t *testing.T) {
	s := extractionSchema(catalog.Enrollments)
	specs := catalog.Schema(catalog.Enrollments)

	if len(s.Required) != len(specs) {
		t.Errorf("required lists %d fields, want %d", len(s.Required), len(specs))
	}
	if got := s.Properties["bezahlt"].Type; got != "boolean" {
		t.Errorf("bezahlt type = %q, want boolean", got)
	}
	if got := s.Properties["anmeldedatum"].Type; got != "string" {
		t.Errorf("anmeldedatum type = %q, want string", got)
	}
}
