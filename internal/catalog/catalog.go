// Package catalog describes the five remote collections the dashboard
// manages: rooms, instructors, courses, participants, and enrollments.
// Field keys are the German wire keys of the remote schema.
package catalog

// Key identifies one of the managed collections.
type Key string

const (
	Rooms        Key = "raeume"
	Instructors  Key = "dozenten"
	Courses      Key = "kurse"
	Participants Key = "teilnehmer"
	Enrollments  Key = "anmeldungen"
)

// Keys lists all collections in load order.
var Keys = []Key{Rooms, Instructors, Courses, Participants, Enrollments}

// Valid reports whether k names a managed collection.
func (k Key) Valid() bool {
	switch k {
	case Rooms, Instructors, Courses, Participants, Enrollments:
		return true
	}
	return false
}

// FieldType is the scalar kind a field is expected to carry.
type FieldType int

const (
	String FieldType = iota
	Number
	Bool
	// Date is a YYYY-MM-DD or ISO timestamp string.
	Date
	// Ref is a lookup reference (record URL) into another collection.
	Ref
)

// LookupSpec describes where a Ref field points and which fields of the
// target record compose its display name.
type LookupSpec struct {
	Target     Key
	NameFields []string
}

// FieldSpec describes one field of a collection schema.
type FieldSpec struct {
	Key    string
	Type   FieldType
	Label  string
	Lookup *LookupSpec
}

var schemas = map[Key][]FieldSpec{
	Rooms: {
		{Key: "raumname", Type: String, Label: "Raumname"},
		{Key: "gebaeude", Type: String, Label: "Gebäude"},
		{Key: "kapazitaet", Type: Number, Label: "Kapazität"},
	},
	Instructors: {
		{Key: "vorname", Type: String, Label: "Vorname"},
		{Key: "nachname", Type: String, Label: "Nachname"},
		{Key: "email", Type: String, Label: "E-Mail"},
		{Key: "telefon", Type: String, Label: "Telefon"},
		{Key: "fachgebiet", Type: String, Label: "Fachgebiet"},
	},
	Courses: {
		{Key: "titel", Type: String, Label: "Kurstitel"},
		{Key: "beschreibung", Type: String, Label: "Beschreibung"},
		{Key: "startdatum", Type: Date, Label: "Startdatum"},
		{Key: "enddatum", Type: Date, Label: "Enddatum"},
		{Key: "maximale_teilnehmer", Type: Number, Label: "Maximale Teilnehmerzahl"},
		{Key: "preis", Type: Number, Label: "Preis (in Euro)"},
		{Key: "dozent", Type: Ref, Label: "Dozent", Lookup: &LookupSpec{Target: Instructors, NameFields: []string{"vorname", "nachname"}}},
		{Key: "raum", Type: Ref, Label: "Raum", Lookup: &LookupSpec{Target: Rooms, NameFields: []string{"raumname"}}},
	},
	Participants: {
		{Key: "vorname", Type: String, Label: "Vorname"},
		{Key: "nachname", Type: String, Label: "Nachname"},
		{Key: "geburtsdatum", Type: Date, Label: "Geburtsdatum"},
		{Key: "email", Type: String, Label: "E-Mail"},
		{Key: "telefon", Type: String, Label: "Telefon"},
	},
	Enrollments: {
		{Key: "teilnehmer", Type: Ref, Label: "Teilnehmer", Lookup: &LookupSpec{Target: Participants, NameFields: []string{"vorname", "nachname"}}},
		{Key: "kurs", Type: Ref, Label: "Kurs", Lookup: &LookupSpec{Target: Courses, NameFields: []string{"titel"}}},
		{Key: "anmeldedatum", Type: Date, Label: "Anmeldedatum"},
		{Key: "bezahlt", Type: Bool, Label: "Bezahlt"},
	},
}

// Schema returns the field specs of a collection, nil for unknown keys.
func Schema(k Key) []FieldSpec {
	return schemas[k]
}

// LookupFields returns the Ref-typed specs of a collection.
func LookupFields(k Key) []FieldSpec {
	var refs []FieldSpec
	for _, f := range schemas[k] {
		if f.Type == Ref {
			refs = append(refs, f)
		}
	}
	return refs
}
