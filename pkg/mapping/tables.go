package mapping

// Mapping tables for each synced entity type. Source lists carry the
// normalized names first, followed by the raw vendor field codes the
// remote CRM emits.

// CandidateTable maps remote contact records to local candidates.
func CandidateTable() *Table {
	return &Table{
		Entity: "candidates",
		Rules: []FieldRule{
			{Target: "first_name", Sources: []string{"firstName", "firstname", "first_name"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "last_name", Sources: []string{"lastName", "lastname", "last_name"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "email", Sources: []string{"email", "email1", "primary_email"}, Class: Authoritative, Normalize: NormalizeEmail},
			{Target: "phone", Sources: []string{"phone", "mobile", "phone_mobile", "homephone"}, Class: Authoritative, Normalize: NormalizePhone},
			{Target: "job_title", Sources: []string{"jobTitle", "title", "designation"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "city", Sources: []string{"city", "mailingcity"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "status", Sources: []string{"status", "contact_status", "cf_status"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "linkedin_url", Sources: []string{"linkedinUrl", "linkedin", "cf_linkedin"}, Class: Protective, Normalize: NormalizeProfileURL},
			{Target: "salary_range_min", Sources: []string{"salaryRangeMin", "cf_salary_min", "cf_salary_expectation_min"}, Class: Protective, Normalize: NormalizeInt},
			{Target: "salary_range_max", Sources: []string{"salaryRangeMax", "cf_salary_max", "cf_salary_expectation_max"}, Class: Protective, Normalize: NormalizeInt},
			{Target: "skills", Sources: []string{"skills", "cf_skills"}, Class: Protective, Normalize: NormalizeText},
			{Target: "notes", Sources: []string{"notes", "description"}, Class: Protective, Normalize: NormalizeText},
		},
	}
}

// ClientCompanyTable maps remote organization records to local clients.
func ClientCompanyTable() *Table {
	return &Table{
		Entity: "clients",
		Rules: []FieldRule{
			{Target: "name", Sources: []string{"name", "accountname", "company"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "email", Sources: []string{"email", "email1"}, Class: Authoritative, Normalize: NormalizeEmail},
			{Target: "phone", Sources: []string{"phone", "phone_office"}, Class: Authoritative, Normalize: NormalizePhone},
			{Target: "city", Sources: []string{"city", "bill_city"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "industry", Sources: []string{"industry"}, Class: Protective, Normalize: NormalizeText},
			{Target: "website", Sources: []string{"website"}, Class: Protective, Normalize: NormalizeText},
			{Target: "notes", Sources: []string{"notes", "description"}, Class: Protective, Normalize: NormalizeText},
		},
	}
}

// VacancyTable maps remote potential/deal records to local vacancies.
func VacancyTable() *Table {
	return &Table{
		Entity: "vacancies",
		Rules: []FieldRule{
			{Target: "title", Sources: []string{"title", "potentialname", "vacancy_name"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "location", Sources: []string{"location", "cf_location"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "status", Sources: []string{"status", "sales_stage"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "description", Sources: []string{"description"}, Class: Protective, Normalize: NormalizeText},
			{Target: "salary_min", Sources: []string{"salaryMin", "cf_salary_min"}, Class: Protective, Normalize: NormalizeInt},
			{Target: "salary_max", Sources: []string{"salaryMax", "cf_salary_max"}, Class: Protective, Normalize: NormalizeInt},
		},
	}
}

// TodoTable maps remote task records to local todo items.
func TodoTable() *Table {
	return &Table{
		Entity: "todos",
		Rules: []FieldRule{
			{Target: "subject", Sources: []string{"subject", "taskname"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "status", Sources: []string{"status", "taskstatus"}, Class: Authoritative, Normalize: NormalizeText},
			{Target: "description", Sources: []string{"description"}, Class: Protective, Normalize: NormalizeText},
		},
	}
}
