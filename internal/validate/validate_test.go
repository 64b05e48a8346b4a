package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_NameBoundaries(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"Al", true},
		{"A", false},
		{strings.Repeat("ab", 50), true},
		{strings.Repeat("ab", 50) + "c", false},
		{"  Al  ", true},
		{"Jean-Luc O'Neil", true},
		{"Äänekoski Pöllö", true},
		{"José", true},
		{"Maaaaaria", false},
		{"Maaaaria", true},
		{"Jane2", false},
		{"Jane<b>", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			res := Field(TypeName, "Name", tt.value, nil)
			assert.Equal(t, tt.valid, res.Valid, res.Error)
		})
	}
}

func TestField_NameMessages(t *testing.T) {
	assert.Equal(t, "Name is required", Field(TypeName, "Name", "   ", nil).Error)
	assert.Equal(t, "Name must be between 2 and 100 characters", Field(TypeName, "Name", "A", nil).Error)
	assert.Equal(t, "Name contains invalid characters", Field(TypeName, "Name", "R2D2", nil).Error)
	assert.Equal(t, "Name contains too many repeated characters", Field(TypeName, "Name", "Zzzzzz", nil).Error)
}

func TestField_CountsRunesNotBytes(t *testing.T) {
	name := strings.Repeat("\u00f6\u00e4", 50)
	assert.True(t, Field(TypeName, "Name", name, nil).Valid)
	assert.False(t, Field(TypeName, "Name", name+"\u00f6", nil).Valid)

	// decomposed input is composed before counting
	decomposed := strings.Repeat("o\u0308a", 50)
	assert.True(t, Field(TypeName, "Name", decomposed, nil).Valid)
}

func TestField_Email(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"jane@example.com", true},
		{"jane.doe+finnish@sub.example.fi", true},
		{"jane@localhost", false},
		{"jane@@example.com", false},
		{"<jane@example.com>", false},
		{"script@example.com", false},
		{"JavaScript@example.com", false},
		{"jane@-example.com", false},
		{strings.Repeat("a", 64) + "@" + strings.Repeat("b", 186) + ".com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			res := Field(TypeEmail, "Email", tt.value, nil)
			assert.Equal(t, tt.valid, res.Valid, res.Error)
		})
	}
}

func TestField_Phone(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"+358401234567", true},
		{"+358 (40) 123-4567", true},
		{"1234567", true},
		{"123456", false},
		{"+ (12) 345-6", false},
		{"12345678901234567890123456", false},
		{"040 123 456x", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			res := Field(TypePhone, "Phone", tt.value, nil)
			assert.Equal(t, tt.valid, res.Valid, res.Error)
		})
	}
	assert.Equal(t, "Phone must contain at least 7 digits", Field(TypePhone, "Phone", "+ (12) 345-6", nil).Error)
}

func TestField_FreeText(t *testing.T) {
	assert.True(t, Field(TypeFreeText, "Job", "Software engineer (part-time), 2 yrs", nil).Valid)
	assert.True(t, Field(TypeFreeText, "Job", "Sairaanhoitaja / nurse", nil).Valid)
	assert.False(t, Field(TypeFreeText, "Job", "Teacher'); DROP TABLE users;--", nil).Valid)
	assert.False(t, Field(TypeFreeText, "Job", "Teacher!!!!!", nil).Valid)
	assert.False(t, Field(TypeFreeText, "Job", "x", nil).Valid)
}

func TestField_Enum(t *testing.T) {
	assert.True(t, Field(TypeEnum, "Course", "Private Lessons", Courses).Valid)
	assert.True(t, Field(TypeEnum, "Course", " Private Lessons ", Courses).Valid)
	assert.False(t, Field(TypeEnum, "Course", "private lessons", Courses).Valid)
	assert.False(t, Field(TypeEnum, "Course", "Swedish", Courses).Valid)
}

func TestScan(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"<script>alert(1)</script>", "script_tag"},
		{"< SCRIPT src=x>", "script_tag"},
		{"<iframe src=x>", "iframe_tag"},
		{"JavaScript:alert(1)", "script_protocol"},
		{"vbscript:msgbox", "script_protocol"},
		{"data:text/html;base64,xx", "data_html"},
		{"x onerror=alert(1)", "event_handler"},
		{"Teacher'); DROP TABLE users;--", "sql_ddl"},
		{"1 UNION ALL SELECT password", "sql_union"},
		{"select name from users", "sql_select"},
		{"insert into users", "sql_insert"},
		{"delete from users", "sql_delete"},
		{"update users set admin", "sql_update"},
		{"' or '1'='1", "sql_tautology"},
		{"../../etc/passwd", "path_traversal"},
		{"{{ .Secret }}", "template"},
		{"${7*7}", "template"},
		{"%3Cscript%3E", "percent_encoding"},
		{`\x3cscript`, "hex_escape"},
		{`\u003cscript`, "unicode_escape"},
		{"&#60;script&#62;", "html_entity"},
		{"&lt;b&gt;", "html_entity"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Contains(t, Scan(tt.value), tt.want)
		})
	}
}

func TestScan_CleanValues(t *testing.T) {
	hits := Scan("Jane Doe", "jane@example.com", "+358401234567", "Engineer", "Teacher", "Beginner Finnish Course")
	assert.Empty(t, hits)
}

func TestScan_DoesNotSpanFields(t *testing.T) {
	assert.Empty(t, Scan("Select", "from Helsinki"))
}

func TestSanitize_FixedPoint(t *testing.T) {
	for _, typ := range []Type{TypeName, TypeFreeText, TypeEmail, TypePhone} {
		out := Sanitize(typ, "<scr<script>ipt>alert(1)</scr</script>ipt>", nil)
		assert.NotContains(t, strings.ToLower(out), "<script", typ.String())
	}
	assert.Equal(t, "alert(1)", Sanitize(TypeFreeText, "<scr<script>ipt>alert(1)</scr</script>ipt>", nil))
}

func TestStripDangerous_ReformedHandler(t *testing.T) {
	out := stripDangerous("<a oonclick=click=x>")
	assert.NotContains(t, strings.ToLower(out), "onclick")

	out = stripDangerous("javasjavascript:cript:alert(1)")
	assert.NotContains(t, strings.ToLower(out), "javascript:")
}

func TestSanitize_AllowList(t *testing.T) {
	assert.Equal(t, "Jane O'Doe", Sanitize(TypeName, "  Jane O'Doe;  ", nil))
	assert.Equal(t, "+358 (40) 123-4567", Sanitize(TypePhone, "+358 (40) 123-4567 ext", nil))
	assert.Equal(t, "jane@example.com", Sanitize(TypeEmail, "jane@example.com\"", nil))
	assert.Equal(t, "ronald=smith@example.com", Sanitize(TypeEmail, "ronald=smith@example.com", nil))
	assert.Equal(t, "donna.onion=x@example.com", Sanitize(TypeEmail, "donna.onion=x@example.com", nil))
	assert.Equal(t, "Teacher (math), 5 yrs", Sanitize(TypeFreeText, "Teacher (math), 5 yrs;", nil))
	assert.Equal(t, "Private Lessons", Sanitize(TypeEnum, "Private Lessons", Courses))
	assert.Equal(t, "", Sanitize(TypeEnum, "Private Lessons<script>", Courses))
}

func TestCheck_ValidEnrollment(t *testing.T) {
	form := Enrollment{
		FullName:          "Jane Doe",
		Email:             "jane@example.com",
		PhoneNumber:       "+358401234567",
		CurrentJobStatus:  "Engineer",
		DesiredOccupation: "Teacher",
		CourseType:        "Beginner Finnish Course",
	}

	rep := Check(form.Inputs(nil))
	require.NoError(t, rep.Err())
	assert.True(t, rep.Valid())
	assert.Equal(t, form, rep.Enrollment())
}

func TestCheck_EmailStoredAsGiven(t *testing.T) {
	form := Enrollment{
		FullName:          "Ronald Smith",
		Email:             "ronald=smith@example.com",
		PhoneNumber:       "+358401234567",
		CurrentJobStatus:  "Engineer",
		DesiredOccupation: "Teacher",
		CourseType:        "Beginner Finnish Course",
	}

	rep := Check(form.Inputs(nil))
	require.NoError(t, rep.Err())
	assert.Empty(t, rep.Threats)
	assert.Equal(t, "ronald=smith@example.com", rep.Enrollment().Email)
}

func TestCheck_MaliciousTakesPrecedence(t *testing.T) {
	form := Enrollment{
		FullName:          "J",
		Email:             "jane@example.com",
		PhoneNumber:       "+358401234567",
		CurrentJobStatus:  "Engineer",
		DesiredOccupation: "Teacher'); DROP TABLE users;--",
		CourseType:        "Beginner Finnish Course",
	}

	rep := Check(form.Inputs(nil))
	assert.ErrorIs(t, rep.Err(), ErrMalicious)
	assert.Len(t, rep.FieldErrors, 2, "every field is still validated")
	assert.Contains(t, rep.Threats, "sql_ddl")
	assert.NotContains(t, rep.Enrollment().DesiredOccupation, ";")
}

func TestCheck_FirstFieldErrorSurfaces(t *testing.T) {
	form := Enrollment{
		FullName:          "Jane Doe",
		Email:             "not-an-email",
		PhoneNumber:       "12",
		CurrentJobStatus:  "Engineer",
		DesiredOccupation: "Teacher",
		CourseType:        "Underwater Basket Weaving",
	}

	err := Check(form.Inputs(nil)).Err()
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FieldEmail, fe.Field)
	assert.Equal(t, "Email is not a valid email address", fe.Error())
}

func TestCheck_CustomCourses(t *testing.T) {
	form := Enrollment{
		FullName:          "Jane Doe",
		Email:             "jane@example.com",
		PhoneNumber:       "+358401234567",
		CurrentJobStatus:  "Engineer",
		DesiredOccupation: "Teacher",
		CourseType:        "Summer Intensive",
	}
	assert.Error(t, Check(form.Inputs(nil)).Err())
	assert.NoError(t, Check(form.Inputs([]string{"Summer Intensive"})).Err())
}
