package validate

// Courses is the default course allow-list.
var Courses = []string{
	"Beginner Finnish Course",
	"Intermediate Finnish Course",
	"Advanced Finnish Course",
	"YKI Exam Preparation",
	"Finnish for Professionals",
	"Private Lessons",
}

// Enrollment field names as posted by the form.
const (
	FieldFullName          = "fullName"
	FieldEmail             = "email"
	FieldPhoneNumber       = "phoneNumber"
	FieldCurrentJobStatus  = "currentJobStatus"
	FieldDesiredOccupation = "desiredOccupation"
	FieldCourseType        = "courseType"
)

// FieldOrder is the order the enrollment form renders its fields in.
var FieldOrder = []string{
	FieldFullName,
	FieldEmail,
	FieldPhoneNumber,
	FieldCurrentJobStatus,
	FieldDesiredOccupation,
	FieldCourseType,
}

// Enrollment is the untrusted enrollment form.
type Enrollment struct {
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	PhoneNumber       string `json:"phoneNumber"`
	CurrentJobStatus  string `json:"currentJobStatus"`
	DesiredOccupation string `json:"desiredOccupation"`
	CourseType        string `json:"courseType"`
}

// Inputs lists the form fields with their types. courses defaults to Courses.
func (e Enrollment) Inputs(courses []string) []Input {
	if len(courses) == 0 {
		courses = Courses
	}
	return []Input{
		{Name: FieldFullName, Label: "Full name", Type: TypeName, Value: e.FullName},
		{Name: FieldEmail, Label: "Email", Type: TypeEmail, Value: e.Email},
		{Name: FieldPhoneNumber, Label: "Phone number", Type: TypePhone, Value: e.PhoneNumber},
		{Name: FieldCurrentJobStatus, Label: "Current job status", Type: TypeFreeText, Value: e.CurrentJobStatus},
		{Name: FieldDesiredOccupation, Label: "Desired occupation", Type: TypeFreeText, Value: e.DesiredOccupation},
		{Name: FieldCourseType, Label: "Course type", Type: TypeEnum, Value: e.CourseType, Options: courses},
	}
}

// Enrollment builds the clean projection from a report produced by Check on
// Enrollment.Inputs.
func (r Report) Enrollment() Enrollment {
	return Enrollment{
		FullName:          r.Values[FieldFullName],
		Email:             r.Values[FieldEmail],
		PhoneNumber:       r.Values[FieldPhoneNumber],
		CurrentJobStatus:  r.Values[FieldCurrentJobStatus],
		DesiredOccupation: r.Values[FieldDesiredOccupation],
		CourseType:        r.Values[FieldCourseType],
	}
}
