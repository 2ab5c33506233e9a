package adapter

import (
	"testing"
	"time"
)

func mustObject(t *testing.T, raw string) map[string]any {
	t.Helper()
	v, err := decodePayload([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	return m
}

func TestStringField_PlainAndNested(t *testing.T) {
	m := mustObject(t, `{
		"plain": "  Acme  ",
		"number": 42,
		"named": {"name": "Globex"},
		"texted": {"text": "Initech"},
		"labelled": {"label": "Hooli"},
		"empty": {}
	}`)

	tests := map[string]string{
		"plain":    "Acme",
		"number":   "42",
		"named":    "Globex",
		"texted":   "Initech",
		"labelled": "Hooli",
		"empty":    "",
		"missing":  "",
	}
	for key, want := range tests {
		if got := stringField(m, key); got != want {
			t.Errorf("stringField(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestStringField_FirstPresentKeyWins(t *testing.T) {
	m := mustObject(t, `{"companyName": null, "company": {"name": "Acme"}}`)
	if got := stringField(m, "companyName", "company"); got != "Acme" {
		t.Errorf("got %q, want Acme", got)
	}
}

func TestFields_UnusableValueFallsThrough(t *testing.T) {
	m := mustObject(t, `{
		"title": "",
		"designation": "X",
		"companyDetails": {"company": {"name": "Hooli"}},
		"companyName": "Hooli",
		"minExp": "fresher",
		"experience": {"years": 2},
		"salary": {},
		"ctc": "9,00,000",
		"listedAt": "soon",
		"postedAt": "2025-03-01",
		"skills": [],
		"keySkills": "Go, SQL"
	}`)

	if got := stringField(m, "title", "designation"); got != "X" {
		t.Errorf("stringField title = %q, want X", got)
	}
	if got := stringField(m, "companyDetails", "companyName"); got != "Hooli" {
		t.Errorf("stringField company = %q, want Hooli", got)
	}
	if got := intField(m, "minExp", "experience"); got != 2 {
		t.Errorf("intField = %d, want 2", got)
	}
	if got := decimalField(m, "salary", "ctc"); got != 900000 {
		t.Errorf("decimalField = %v, want 900000", got)
	}
	got := timeField(m, "listedAt", "postedAt")
	if got == nil || !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("timeField = %v, want 2025-03-01", got)
	}
	if list := stringListField(m, "skills", "keySkills"); len(list) != 2 || list[0] != "Go" {
		t.Errorf("stringListField = %v, want [Go SQL]", list)
	}
}

func TestIntField_ZeroIsUsable(t *testing.T) {
	m := mustObject(t, `{"minExp": 0, "experience": 5}`)
	if got := intField(m, "minExp", "experience"); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestIntField(t *testing.T) {
	m := mustObject(t, `{
		"n": 3,
		"s": "5",
		"yrs": "7 yrs",
		"nested": {"years": 2},
		"value": {"value": "4"},
		"junk": "n/a"
	}`)
	tests := map[string]int{"n": 3, "s": 5, "yrs": 7, "nested": 2, "value": 4, "junk": 0, "missing": 0}
	for key, want := range tests {
		if got := intField(m, key); got != want {
			t.Errorf("intField(%q) = %d, want %d", key, got, want)
		}
	}
}

func TestDecimalField(t *testing.T) {
	m := mustObject(t, `{
		"n": 1500000.5,
		"commas": "12,00,000",
		"abs": {"absoluteValue": 900000},
		"amount": {"amount": "1200"}
	}`)
	tests := map[string]float64{"n": 1500000.5, "commas": 1200000, "abs": 900000, "amount": 1200, "missing": 0}
	for key, want := range tests {
		if got := decimalField(m, key); got != want {
			t.Errorf("decimalField(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestTimeField(t *testing.T) {
	m := mustObject(t, `{
		"millis": 1740787200000,
		"seconds": 1740787200,
		"numstr": "1740787200000",
		"iso": "2025-03-01T00:00:00Z",
		"local": "2025-03-01T00:00:00",
		"date": "2025-03-01",
		"bad": "yesterday"
	}`)
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, key := range []string{"millis", "seconds", "numstr", "iso", "local", "date"} {
		got := timeField(m, key)
		if got == nil {
			t.Errorf("timeField(%q) = nil", key)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("timeField(%q) = %v, want %v", key, got, want)
		}
	}
	if got := timeField(m, "bad"); got != nil {
		t.Errorf("timeField(bad) = %v, want nil", got)
	}
	if got := timeField(m, "missing"); got != nil {
		t.Errorf("timeField(missing) = %v, want nil", got)
	}
}

func TestStringListField(t *testing.T) {
	m := mustObject(t, `{
		"plain": ["Go", "SQL", "Go"],
		"nested": [{"text": "Kafka"}, {"name": "Redis"}, {"city": "Pune"}],
		"csv": "Banking, Fintech ,",
		"null": null
	}`)

	check := func(key string, want []string) {
		t.Helper()
		got := stringListField(m, key)
		if len(got) != len(want) {
			t.Fatalf("stringListField(%q) = %v, want %v", key, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("stringListField(%q)[%d] = %q, want %q", key, i, got[i], want[i])
			}
		}
	}
	check("plain", []string{"Go", "SQL"})
	check("nested", []string{"Kafka", "Redis", "Pune"})
	check("csv", []string{"Banking", "Fintech"})
	check("null", []string{})
	check("missing", []string{})
}

func TestOrderRange(t *testing.T) {
	if lo, hi := orderRange(8, 3); lo != 3 || hi != 8 {
		t.Errorf("orderRange(8, 3) = %d, %d", lo, hi)
	}
	if lo, hi := orderRange(5, 0); lo != 5 || hi != 0 {
		t.Errorf("orderRange(5, 0) = %d, %d", lo, hi)
	}
}

func TestExtractText(t *testing.T) {
	got := extractText("&lt;p&gt;Build&lt;/p&gt;<b>fast</b>   systems")
	if got != "Build fast systems" {
		t.Errorf("got %q", got)
	}
}
