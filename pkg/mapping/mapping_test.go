package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPriorityOrder(t *testing.T) {
	table := &Table{
		Entity: "candidates",
		Rules: []FieldRule{
			{Target: "first_name", Sources: []string{"firstName", "firstname", "first_name"}, Class: Authoritative, Normalize: NormalizeText},
		},
	}

	record := table.Extract(map[string]interface{}{"firstname": "Ana"})
	assert.Equal(t, "Ana", record.String("first_name"))

	// Earlier source names win over later ones.
	record = table.Extract(map[string]interface{}{
		"firstName": "Anna",
		"firstname": "Ana",
	})
	assert.Equal(t, "Anna", record.String("first_name"))
}

func TestExtractAuthoritativeAllowsEmpty(t *testing.T) {
	table := CandidateTable()

	// The source field is present but empty: the empty value must be
	// extracted so the merge can blank the local field.
	record := table.Extract(map[string]interface{}{"jobTitle": ""})
	require.True(t, record.Has("job_title"))
	assert.Equal(t, "", record.String("job_title"))
}

func TestExtractAuthoritativeAbsentStaysUnset(t *testing.T) {
	table := CandidateTable()

	record := table.Extract(map[string]interface{}{"firstname": "Ana"})
	assert.False(t, record.Has("job_title"))
}

func TestExtractProtectiveSkipsEmpty(t *testing.T) {
	table := CandidateTable()

	// All salary sources empty or absent: field stays unset so the local
	// value survives.
	record := table.Extract(map[string]interface{}{
		"salaryRangeMax": "",
		"firstname":      "Ana",
	})
	assert.False(t, record.Has("salary_range_max"))

	// A later source with a value fills in for an earlier empty one.
	record = table.Extract(map[string]interface{}{
		"salaryRangeMax": "",
		"cf_salary_max":  "90000",
	})
	max, ok := record.Int("salary_range_max")
	require.True(t, ok)
	assert.Equal(t, 90000, max)
}

func TestExtractStringifiesNumbers(t *testing.T) {
	table := CandidateTable()

	// JSON decoding yields float64 for numeric fields.
	record := table.Extract(map[string]interface{}{"cf_salary_min": float64(65000)})
	min, ok := record.Int("salary_range_min")
	require.True(t, ok)
	assert.Equal(t, 65000, min)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+31 (0)6 1234-5678", "+31 (0)6 1234-5678"},
		{"tel: 020/123.45.67", "0201234567"},
		{"  06 12345678  ", "06 12345678"},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestNormalizeProfileURL(t *testing.T) {
	got, ok := NormalizeProfileURL("http://www.linkedin.com/in/ana-garcia?utm_source=x#top")
	require.True(t, ok)
	assert.Equal(t, "https://www.linkedin.com/in/ana-garcia", got)

	got, ok = NormalizeProfileURL("linkedin.com/in/ana-garcia")
	require.True(t, ok)
	assert.Equal(t, "https://linkedin.com/in/ana-garcia", got)

	// Unknown hosts are rejected, not stored verbatim.
	_, ok = NormalizeProfileURL("https://example.com/profile")
	assert.False(t, ok)

	_, ok = NormalizeProfileURL("not a url at all")
	assert.False(t, ok)

	// Empty stays empty and valid so authoritative blanking works.
	got, ok = NormalizeProfileURL("")
	require.True(t, ok)
	assert.Equal(t, "", got)
}

func TestNormalizeInt(t *testing.T) {
	got, ok := NormalizeInt("€ 90.000")
	require.True(t, ok)
	assert.Equal(t, 90000, got)

	_, ok = NormalizeInt("negotiable")
	assert.False(t, ok)
}

func TestNormalizeEmail(t *testing.T) {
	got, ok := NormalizeEmail("  Ana.Garcia@Example.COM ")
	require.True(t, ok)
	assert.Equal(t, "ana.garcia@example.com", got)

	_, ok = NormalizeEmail("not-an-email")
	assert.False(t, ok)
}

func TestExtractInvalidURLClearsAuthoritative(t *testing.T) {
	table := &Table{
		Entity: "candidates",
		Rules: []FieldRule{
			{Target: "linkedin_url", Sources: []string{"linkedin"}, Class: Authoritative, Normalize: NormalizeProfileURL},
		},
	}

	record := table.Extract(map[string]interface{}{"linkedin": "garbage value"})
	require.True(t, record.Has("linkedin_url"))
	assert.Equal(t, "", record.String("linkedin_url"))
}

func TestExtractDeterministic(t *testing.T) {
	table := CandidateTable()
	raw := map[string]interface{}{
		"firstname":     "Ana",
		"lastname":      "García",
		"email1":        "ana@example.com",
		"mobile":        "+34 600 000 000",
		"cf_salary_max": "90000",
	}

	first := table.Extract(raw)
	second := table.Extract(raw)
	assert.Equal(t, first, second)
}
