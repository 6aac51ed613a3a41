package testutil

// DocBuilder assembles a raw legacy document the way the old application
// wrote them: amounts under "value" as text, dates as YYYY-MM-DD strings.
//
// Example:
//
//	doc := testutil.LegacyDoc("legacy-1", "u1").
//		Amount("42.10").
//		Expense("Food").
//		Date("2024-03-10").
//		Build()
type DocBuilder struct {
	fields map[string]any
}

// LegacyDoc starts a valid legacy expense owned by ownerID through userId.
func LegacyDoc(id, ownerID string) *DocBuilder {
	return &DocBuilder{fields: map[string]any{
		"id":          id,
		"userId":      ownerID,
		"value":       "10.00",
		"type":        "despesa",
		"category":    "General",
		"date":        "2024-03-10",
		"description": "",
	}}
}

// Amount sets the raw amount value.
func (b *DocBuilder) Amount(v any) *DocBuilder {
	b.fields["value"] = v
	return b
}

// Expense marks the document as an expense in category.
func (b *DocBuilder) Expense(category string) *DocBuilder {
	b.fields["type"] = "despesa"
	b.fields["category"] = category
	return b
}

// Income marks the document as income in category.
func (b *DocBuilder) Income(category string) *DocBuilder {
	b.fields["type"] = "receita"
	b.fields["category"] = category
	return b
}

// Date sets the date field.
func (b *DocBuilder) Date(date string) *DocBuilder {
	b.fields["date"] = date
	return b
}

// Description sets the description.
func (b *DocBuilder) Description(s string) *DocBuilder {
	b.fields["description"] = s
	return b
}

// OwnerField moves the owner id from userId to field.
func (b *DocBuilder) OwnerField(field string) *DocBuilder {
	owner := b.fields["userId"]
	delete(b.fields, "userId")
	b.fields[field] = owner
	return b
}

// Set assigns an arbitrary field.
func (b *DocBuilder) Set(key string, value any) *DocBuilder {
	b.fields[key] = value
	return b
}

// Without removes a field.
func (b *DocBuilder) Without(key string) *DocBuilder {
	delete(b.fields, key)
	return b
}

// Build returns a copy of the assembled document.
func (b *DocBuilder) Build() map[string]any {
	return copyFields(b.fields)
}
