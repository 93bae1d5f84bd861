// Package prompt holds the fixed instructions and templates sent upstream,
// plus the cleanup applied to model output before it is parsed.
package prompt

import (
	"bytes"
	"strings"
	"text/template"
)

// ImageAnalysisInstruction accompanies every uploaded scan.
const ImageAnalysisInstruction = `
You are a medical imaging expert. Analyze this medical image (X-ray, MRI, or CT scan) and provide:
1. A clear diagnosis if any abnormalities are present
2. Detailed observations of any visible issues
3. Potential medical conditions suggested by the findings
4. Areas that require further investigation

Format your response in valid JSON without markdown or code blocks:
{
    "diagnosis": "Brief primary diagnosis",
    "observations": ["List of detailed observations"],
    "potential_conditions": ["List of possible conditions"],
    "areas_of_concern": ["Specific areas needing attention"]
}
`

// PatientProfile is the patient context interpolated into a symptom prompt.
// Values are rendered exactly as supplied.
type PatientProfile struct {
	Name           string
	Age            string
	Gender         string
	Weight         string
	Height         string
	BloodGroup     string
	Allergies      string
	MedicalHistory string
	Medication     string
}

const symptomTemplate = `
Patient Information:
- Name: {{.Name}}
- Age: {{.Age}}
- Gender: {{.Gender}}
- Weight: {{.Weight}} kg
- Height: {{.Height}} cm
- Blood Group: {{.BloodGroup}}
- Allergies: {{.Allergies}}
- Medical History: {{.MedicalHistory}}
- Current Medication: {{.Medication}}

Reported Symptoms:
- {{.Symptoms}}

Based on this information, suggest possible medical conditions, severity, and recommended next steps.
`

var symptomTmpl = template.Must(template.New("symptoms").Parse(symptomTemplate))

// notProvided stands in for attributes the caller left empty
const notProvided = "Not provided"

type symptomData struct {
	PatientProfile
	Symptoms string
}

// BuildSymptomPrompt renders the symptom prompt. The output is a pure function
// of its inputs.
func BuildSymptomPrompt(p PatientProfile, symptoms string) string {
	data := symptomData{
		PatientProfile: PatientProfile{
			Name:           orNotProvided(p.Name),
			Age:            orNotProvided(p.Age),
			Gender:         orNotProvided(p.Gender),
			Weight:         orNotProvided(p.Weight),
			Height:         orNotProvided(p.Height),
			BloodGroup:     orNotProvided(p.BloodGroup),
			Allergies:      orNotProvided(p.Allergies),
			MedicalHistory: orNotProvided(p.MedicalHistory),
			Medication:     orNotProvided(p.Medication),
		},
		Symptoms: symptoms,
	}

	var buf bytes.Buffer
	// text/template only fails here on writer errors, which bytes.Buffer never returns
	_ = symptomTmpl.Execute(&buf, data)
	return buf.String()
}

func orNotProvided(v string) string {
	if strings.TrimSpace(v) == "" {
		return notProvided
	}
	return v
}

// StripCodeFences removes every markdown fence marker the model may add
// despite instructions, then trims surrounding whitespace.
func StripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
