// Package normalize maps heterogeneous stored transaction documents onto the
// canonical model.Transaction shape.
//
// Historical documents disagree on field names (value vs amount, userId vs
// ownerId, classId vs groupId) and on value types (amounts as text or number,
// dates as strings, timestamps or month/year pairs). Normalize resolves each
// field through an ordered list of candidate names and returns an error,
// never a partial record, when a required field cannot be resolved.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Normalization errors. Every one of them means the record is skipped.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrUnresolvableDate = errors.New("no resolvable date")
	ErrMissingCategory  = errors.New("missing category")
	ErrMissingOwner     = errors.New("missing owner")
)

// Field lookup orders, most canonical name first.
var (
	amountFields      = []string{"amount", "value", "valor"}
	kindFields        = []string{"kind", "type", "tipo"}
	ownerFields       = []string{"ownerId", "userId", "uid", "user", "userEmail"}
	categoryFields    = []string{"category", "categoria"}
	descriptionFields = []string{"description", "descricao"}
	dateFields        = []string{"date", "occursOn", "data"}
	groupFields       = []string{"groupId", "classId"}
	paidFields        = []string{"paid", "pago"}
	sourceFields      = []string{"sourceId", "originalId"}
)

var incomeWords = map[string]bool{"income": true, "receita": true, "revenue": true, "credit": true}

var expenseWords = map[string]bool{"expense": true, "despesa": true, "debit": true}

var dateLayouts = []string{
	model.DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Error describes why a record could not be normalized.
type Error struct {
	Err      error
	RecordID string
	Field    string
	Detail   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("record %s: %v", e.RecordID, e.Err)
	if e.Field != "" {
		msg += " in field " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsSkip reports whether err came from Normalize.
func IsSkip(err error) bool {
	var nerr *Error
	return errors.As(err, &nerr)
}

// IsDropped reports whether the record was dropped for lacking any usable date.
func IsDropped(err error) bool {
	return errors.Is(err, ErrUnresolvableDate)
}

// Normalize converts a raw document into a canonical transaction. It performs
// no I/O; the same input always produces the same output or the same error.
func Normalize(raw model.RawRecord) (model.Transaction, error) {
	fail := func(err error, field, detail string) (model.Transaction, error) {
		return model.Transaction{}, &Error{Err: err, RecordID: raw.ID, Field: field, Detail: detail}
	}

	amount, field, err := resolveAmount(raw)
	if err != nil {
		return fail(ErrInvalidAmount, field, err.Error())
	}

	kind, field, err := resolveKind(raw)
	if err != nil {
		return fail(ErrInvalidKind, field, err.Error())
	}

	owner := stringField(raw, ownerFields...)
	if owner == "" {
		return fail(ErrMissingOwner, "", "")
	}

	category := strings.TrimSpace(stringField(raw, categoryFields...))
	if category == "" {
		return fail(ErrMissingCategory, "", "")
	}

	occursOn, ok := resolveDate(raw)
	if !ok {
		return fail(ErrUnresolvableDate, "", "")
	}

	txn := model.Transaction{
		ID:          raw.ID,
		Location:    raw.Location,
		OwnerID:     owner,
		Kind:        kind,
		Category:    category,
		Amount:      amount,
		OccursOn:    occursOn,
		Description: stringField(raw, descriptionFields...),
		GroupID:     stringField(raw, groupFields...),
		BatchID:     stringField(raw, "migrationBatch"),
		Paid:        boolField(raw, paidFields...),
		Origin:      model.OriginNative,
	}

	if v, _, ok := raw.Field("createdAt"); ok {
		if ts, ok := parseTimestamp(v); ok {
			txn.CreatedAt = ts
		}
	}

	if source := stringField(raw, sourceFields...); source != "" {
		txn.Origin = model.OriginMigrated
		txn.SourceID = source
		if v, _, ok := raw.Field("migratedAt"); ok {
			if ts, ok := parseTimestamp(v); ok {
				txn.MigratedAt = ts
			}
		}
	}

	return txn, nil
}

// Encode renders a canonical transaction as the document written to the
// current location. Normalize(Encode(t)) reproduces t's fields.
func Encode(t model.Transaction) map[string]any {
	doc := map[string]any{
		"ownerId":     t.OwnerID,
		"kind":        string(t.Kind),
		"category":    t.Category,
		"amount":      t.Amount.String(),
		"date":        t.OccursOn.String(),
		"month":       int(t.OccursOn.Month),
		"year":        t.OccursOn.Year,
		"description": t.Description,
		"paid":        t.Paid,
		"origin":      string(originOrNative(t.Origin)),
	}
	if t.GroupID != "" {
		doc["groupId"] = t.GroupID
	}
	if !t.CreatedAt.IsZero() {
		doc["createdAt"] = t.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if t.IsMigrated() {
		doc["sourceId"] = t.SourceID
		if !t.MigratedAt.IsZero() {
			doc["migratedAt"] = t.MigratedAt.UTC().Format(time.RFC3339Nano)
		}
		if t.BatchID != "" {
			doc["migrationBatch"] = t.BatchID
		}
	}
	return doc
}

func originOrNative(o model.Origin) model.Origin {
	if o == "" {
		return model.OriginNative
	}
	return o
}

func resolveAmount(raw model.RawRecord) (decimal.Decimal, string, error) {
	v, field, ok := raw.Field(amountFields...)
	if !ok {
		return decimal.Zero, "", errors.New("missing")
	}
	amount, err := ParseAmount(v)
	if err != nil {
		return decimal.Zero, field, err
	}
	return amount, field, nil
}

// ParseAmount strictly converts a stored amount into a positive decimal.
func ParseAmount(v any) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch x := v.(type) {
	case decimal.Decimal:
		d = x
	case json.Number:
		parsed, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", x.String())
		}
		d = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, errors.New("empty")
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", x)
		}
		d = parsed
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, errors.New("not finite")
		}
		d = decimal.NewFromFloat(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, errors.New("not finite")
		}
		d = decimal.NewFromFloat32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case int32:
		d = decimal.NewFromInt32(x)
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", v)
	}

	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be greater than zero, got %s", d.String())
	}
	return d, nil
}

func resolveKind(raw model.RawRecord) (model.Kind, string, error) {
	v, field, ok := raw.Field(kindFields...)
	if !ok {
		return "", "", errors.New("missing")
	}
	k, ok := ParseKind(fmt.Sprint(v))
	if !ok {
		return "", field, fmt.Errorf("unknown kind %q", fmt.Sprint(v))
	}
	return k, field, nil
}

// ParseKind maps a kind word from any known vocabulary onto a model.Kind.
func ParseKind(s string) (model.Kind, bool) {
	word := strings.ToLower(strings.TrimSpace(s))
	switch {
	case incomeWords[word]:
		return model.KindIncome, true
	case expenseWords[word]:
		return model.KindExpense, true
	default:
		return "", false
	}
}

// resolveDate applies the fallback order month+year, date field, createdAt.
func resolveDate(raw model.RawRecord) (model.Date, bool) {
	explicit, hasExplicit := explicitDate(raw)

	if month, year, ok := monthYear(raw); ok {
		day := 1
		if hasExplicit && explicit.InMonth(month, year) {
			day = explicit.Day
		}
		if d := model.NewDate(year, month, day); d.Valid() {
			return d, true
		}
	}

	if hasExplicit {
		return explicit, true
	}

	if v, _, ok := raw.Field("createdAt"); ok {
		if ts, ok := parseTimestamp(v); ok {
			if d := model.DateOf(ts); d.Valid() {
				return d, true
			}
		}
	}

	return model.Date{}, false
}

func monthYear(raw model.RawRecord) (time.Month, int, bool) {
	mv, _, okM := raw.Field("month")
	yv, _, okY := raw.Field("year")
	if !okM || !okY {
		return 0, 0, false
	}
	m, okM := toInt(mv)
	y, okY := toInt(yv)
	if !okM || !okY || m < 1 || m > 12 || y < 1 {
		return 0, 0, false
	}
	return time.Month(m), y, true
}

func explicitDate(raw model.RawRecord) (model.Date, bool) {
	for _, name := range dateFields {
		v, ok := raw.Fields[name]
		if !ok || v == nil {
			continue
		}
		if d, ok := parseDateValue(v); ok {
			return d, true
		}
	}
	return model.Date{}, false
}

func parseDateValue(v any) (model.Date, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return model.DateOf(t), true
			}
		}
		return model.Date{}, false
	}
	switch v.(type) {
	case time.Time, map[string]any:
		if t, ok := parseTimestamp(v); ok {
			d := model.DateOf(t)
			return d, d.Valid()
		}
	}
	// A bare number in a date field is ambiguous; only createdAt may be epoch millis
	return model.Date{}, false
}

// parseTimestamp accepts time values, RFC3339-ish strings, unix milliseconds
// and Firestore-style {seconds, nanoseconds} maps.
func parseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case map[string]any:
		for _, key := range []string{"seconds", "_seconds"} {
			if sv, ok := x[key]; ok {
				secs, ok := toInt(sv)
				if !ok {
					return time.Time{}, false
				}
				var nanos int
				for _, nkey := range []string{"nanoseconds", "_nanoseconds"} {
					if nv, ok := x[nkey]; ok {
						nanos, _ = toInt(nv)
					}
				}
				return time.Unix(int64(secs), int64(nanos)).UTC(), true
			}
		}
		return time.Time{}, false
	default:
		if ms, ok := toInt(v); ok && ms > 0 {
			return time.UnixMilli(int64(ms)).UTC(), true
		}
		return time.Time{}, false
	}
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func stringField(raw model.RawRecord, names ...string) string {
	for _, name := range names {
		if s, ok := raw.Fields[name].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func boolField(raw model.RawRecord, names ...string) bool {
	v, _, ok := raw.Field(names...)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	default:
		return false
	}
}
