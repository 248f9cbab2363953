// Package submission turns raw form and JSON bodies into sanitized,
// validated driver applications and company hiring requests.
package submission

// DriverApplication is a driver's job application.
type DriverApplication struct {
	FirstName       string     `json:"firstName" validate:"required"`
	LastName        string     `json:"lastName" validate:"required"`
	Email           string     `json:"email" validate:"required,mailaddr"`
	Phone           string     `json:"phone" validate:"required"`
	Age             string     `json:"age"`
	CDLLicense      string     `json:"cdlLicense"`
	OTRExperience   string     `json:"otrExperience"`
	YearsExperience string     `json:"yearsExperience"`
	CleanRecord     string     `json:"cleanRecord"`
	DOTPhysical     string     `json:"dotPhysical"`
	RouteType       StringList `json:"routeType"`
	HomeTime        string     `json:"homeTime"`
	PayExpectation  string     `json:"payExpectation"`
	AdditionalInfo  string     `json:"additionalInfo"`
}

// NewDriverApplication maps already sanitized fields onto an application.
func NewDriverApplication(f Fields) *DriverApplication {
	return &DriverApplication{
		FirstName:       f.String("firstName"),
		LastName:        f.String("lastName"),
		Email:           f.String("email"),
		Phone:           f.String("phone"),
		Age:             f.String("age"),
		CDLLicense:      f.String("cdlLicense"),
		OTRExperience:   f.String("otrExperience"),
		YearsExperience: f.String("yearsExperience"),
		CleanRecord:     f.String("cleanRecord"),
		DOTPhysical:     f.String("dotPhysical"),
		RouteType:       f.List("routeType"),
		HomeTime:        f.String("homeTime"),
		PayExpectation:  f.String("payExpectation"),
		AdditionalInfo:  f.String("additionalInfo"),
	}
}

// FullName is "First Last".
func (a *DriverApplication) FullName() string {
	return a.FirstName + " " + a.LastName
}

// HiringRequest is a company's request for drivers.
type HiringRequest struct {
	CompanyName           string     `json:"companyName" validate:"required"`
	ContactPerson         string     `json:"contactPerson" validate:"required"`
	Email                 string     `json:"email" validate:"required,mailaddr"`
	Phone                 string     `json:"phone" validate:"required"`
	Website               string     `json:"website"`
	Address               string     `json:"address"`
	City                  string     `json:"city"`
	State                 string     `json:"state"`
	ZipCode               string     `json:"zipCode"`
	Industry              string     `json:"industry"`
	Positions             StringList `json:"positions"`
	NumberOfDriversNeeded string     `json:"numberOfDriversNeeded"`
	ExperienceLevel       string     `json:"experienceLevel"`
	Salary                string     `json:"salary"`
	Benefits              string     `json:"benefits"`
	JobDescription        string     `json:"jobDescription"`
	AdditionalInfo        string     `json:"additionalInfo"`
}

// NewHiringRequest maps already sanitized fields onto a hiring request.
func NewHiringRequest(f Fields) *HiringRequest {
	return &HiringRequest{
		CompanyName:           f.String("companyName"),
		ContactPerson:         f.String("contactPerson"),
		Email:                 f.String("email"),
		Phone:                 f.String("phone"),
		Website:               f.String("website"),
		Address:               f.String("address"),
		City:                  f.String("city"),
		State:                 f.String("state"),
		ZipCode:               f.String("zipCode"),
		Industry:              f.String("industry"),
		Positions:             f.List("positions"),
		NumberOfDriversNeeded: f.String("numberOfDriversNeeded"),
		ExperienceLevel:       f.String("experienceLevel"),
		Salary:                f.String("salary"),
		Benefits:              f.String("benefits"),
		JobDescription:        f.String("jobDescription"),
		AdditionalInfo:        f.String("additionalInfo"),
	}
}
