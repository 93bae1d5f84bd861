package models

// ImageAnalysis is the structured report the image bridge returns.
// The upstream model is instructed to produce exactly this shape.
type ImageAnalysis struct {
	Diagnosis           string   `json:"diagnosis"`
	Observations        []string `json:"observations"`
	PotentialConditions []string `json:"potential_conditions"`
	AreasOfConcern      []string `json:"areas_of_concern"`
}

// Normalize replaces absent lists with empty ones so a success
// response always carries four well-formed fields.
func (a *ImageAnalysis) Normalize() {
	if a.Observations == nil {
		a.Observations = []string{}
	}
	if a.PotentialConditions == nil {
		a.PotentialConditions = []string{}
	}
	if a.AreasOfConcern == nil {
		a.AreasOfConcern = []string{}
	}
}

// ImageUpload is one scan submitted for analysis
type ImageUpload struct {
	Filename     string
	DeclaredType string
	Data         []byte
}

// StoredScanRequest references a scan already held in blob storage
type StoredScanRequest struct {
	Container string `json:"container" binding:"required"`
	Blob      string `json:"blob" binding:"required"`
}
