package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ImageDiagnosisResponse is the success envelope of the image bridge
type ImageDiagnosisResponse struct {
	Status   string         `json:"status"`
	Analysis *ImageAnalysis `json:"analysis"`
}

// SymptomDiagnosisResponse is the success envelope of the symptom bridge
type SymptomDiagnosisResponse struct {
	Status    string `json:"status"`
	Diagnosis string `json:"diagnosis"`
}

// ErrorResponse is the failure envelope shared by both bridges.
// RawResponse is only set when upstream text could not be parsed.
type ErrorResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error"`
	RequestID   string `json:"request_id,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// SymptomRequest is the JSON body accepted by the symptom bridge
type SymptomRequest struct {
	Name           FlexString `json:"name"`
	Age            FlexString `json:"age"`
	Gender         FlexString `json:"gender"`
	Weight         FlexString `json:"weight"`
	Height         FlexString `json:"height"`
	BloodGroup     FlexString `json:"bloodGroup"`
	Allergies      FlexString `json:"allergies"`
	MedicalHistory FlexString `json:"medicalHistory"`
	Medication     FlexString `json:"medication"`
	Symptoms       FlexString `json:"symptoms"`
}

// FlexString accepts a JSON string, number or boolean and keeps its text.
// Numbers keep their literal form, so 61.50 stays "61.50". null is empty.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case '[', '{':
		return fmt.Errorf("expected string or number, got %s", jsonKind(data[0]))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			*f = FlexString(n.String())
			return nil
		}
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*f = FlexString(fmt.Sprint(b))
		return nil
	}
}

func jsonKind(first byte) string {
	if first == '[' {
		return "array"
	}
	return "object"
}

func (f FlexString) String() string {
	return string(f)
}
