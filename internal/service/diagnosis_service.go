package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "go-diagnosis-bridge/internal/errors"
	"go-diagnosis-bridge/internal/gemini"
	"go-diagnosis-bridge/internal/observer"
	"go-diagnosis-bridge/internal/prompt"
	"go-diagnosis-bridge/internal/storage"
	"go-diagnosis-bridge/pkg/models"
	"go-diagnosis-bridge/pkg/validation"
)

// User-facing failure messages
const (
	MsgImageNoCandidates   = "AI analysis failed."
	MsgImageUpstreamFailed = "Failed to analyze image."
	MsgImageBadFormat      = "Invalid AI response format."

	MsgMissingSymptoms       = "Missing symptoms."
	MsgSymptomNoCandidates   = "AI diagnosis failed."
	MsgSymptomUpstreamFailed = "Failed to generate diagnosis."

	MsgStoredScansDisabled = "Stored scans are not configured."
	MsgStoredScanNotFound  = "Stored scan not found."
	MsgStoredScanTooLarge  = "Stored scan is too large."
	MsgStoredScanFailed    = "Failed to load stored scan."
)

// DiagnosisService exposes both bridges. Every method returns either a result
// or an *apperrors.AppError of kind validation, upstream or format.
type DiagnosisService interface {
	// DiagnoseImage analyzes one uploaded scan; a nil upload means no file was sent
	DiagnoseImage(ctx context.Context, upload *models.ImageUpload) (*models.ImageAnalysis, error)

	// DiagnoseStoredImage runs the image bridge on a scan held in blob storage
	DiagnoseStoredImage(ctx context.Context, ref models.StoredScanRequest) (*models.ImageAnalysis, error)

	// DiagnoseSymptoms returns the upstream advisory text unmodified
	DiagnoseSymptoms(ctx context.Context, req models.SymptomRequest) (string, error)
}

type diagnosisService struct {
	generator gemini.Generator
	uploads   *validation.UploadValidator
	blobRefs  *validation.BlobRefValidator
	scans     storage.ScanStore
	events    observer.Subject
}

// NewDiagnosisService creates the bridge service. scans and events may be nil.
func NewDiagnosisService(
	generator gemini.Generator,
	uploads *validation.UploadValidator,
	scans storage.ScanStore,
	events observer.Subject,
) DiagnosisService {
	if uploads == nil {
		uploads = validation.NewUploadValidator()
	}
	return &diagnosisService{
		generator: generator,
		uploads:   uploads,
		blobRefs:  validation.NewBlobRefValidator(),
		scans:     scans,
		events:    events,
	}
}

func (s *diagnosisService) DiagnoseImage(ctx context.Context, upload *models.ImageUpload) (*models.ImageAnalysis, error) {
	start := s.begin(ctx, observer.BridgeImage)
	analysis, err := s.analyzeImage(ctx, observer.BridgeImage, upload)
	s.finish(ctx, observer.BridgeImage, start, err)
	return analysis, err
}

func (s *diagnosisService) DiagnoseStoredImage(ctx context.Context, ref models.StoredScanRequest) (*models.ImageAnalysis, error) {
	start := s.begin(ctx, observer.BridgeStoredImage)
	analysis, err := s.analyzeStoredImage(ctx, ref)
	s.finish(ctx, observer.BridgeStoredImage, start, err)
	return analysis, err
}

func (s *diagnosisService) DiagnoseSymptoms(ctx context.Context, req models.SymptomRequest) (string, error) {
	start := s.begin(ctx, observer.BridgeSymptom)
	text, err := s.diagnoseSymptoms(ctx, req)
	s.finish(ctx, observer.BridgeSymptom, start, err)
	return text, err
}

func (s *diagnosisService) analyzeStoredImage(ctx context.Context, ref models.StoredScanRequest) (*models.ImageAnalysis, error) {
	if s.scans == nil {
		return nil, apperrors.NewValidationError(MsgStoredScansDisabled, nil)
	}
	if err := s.blobRefs.ValidateBlobRef(ref.Container, ref.Blob); err != nil {
		return nil, err
	}

	obj, err := s.scans.FetchScan(ctx, ref.Container, ref.Blob)
	switch {
	case errors.Is(err, storage.ErrScanNotFound):
		return nil, apperrors.NewValidationError(MsgStoredScanNotFound, err)
	case errors.Is(err, storage.ErrScanTooLarge):
		return nil, apperrors.NewValidationError(MsgStoredScanTooLarge, err)
	case err != nil:
		return nil, apperrors.NewUpstreamError(MsgStoredScanFailed, err)
	}

	return s.analyzeImage(ctx, observer.BridgeStoredImage, &models.ImageUpload{
		Filename:     obj.Name,
		DeclaredType: obj.ContentType,
		Data:         obj.Data,
	})
}

func (s *diagnosisService) analyzeImage(ctx context.Context, bridge observer.Bridge, upload *models.ImageUpload) (*models.ImageAnalysis, error) {
	encoded, err := s.uploads.Encode(upload)
	if err != nil {
		return nil, err
	}

	text, err := s.generate(ctx, bridge, MsgImageNoCandidates, MsgImageUpstreamFailed,
		gemini.InlinePart(encoded.MimeType, encoded.Data),
		gemini.TextPart(prompt.ImageAnalysisInstruction),
	)
	if err != nil {
		return nil, err
	}

	return ParseImageAnalysis(text)
}

// ParseImageAnalysis strips code fences from model output and decodes the
// report. Anything other than a single JSON object is a format error that
// carries the cleaned text.
func ParseImageAnalysis(text string) (*models.ImageAnalysis, error) {
	cleaned := prompt.StripCodeFences(text)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, apperrors.NewFormatError(MsgImageBadFormat, cleaned, errors.New("response is not a JSON object"))
	}

	var analysis models.ImageAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, apperrors.NewFormatError(MsgImageBadFormat, cleaned, err)
	}
	analysis.Normalize()
	return &analysis, nil
}

func (s *diagnosisService) diagnoseSymptoms(ctx context.Context, req models.SymptomRequest) (string, error) {
	symptoms := req.Symptoms.String()
	if strings.TrimSpace(symptoms) == "" {
		return "", apperrors.NewValidationError(MsgMissingSymptoms, nil)
	}

	text := prompt.BuildSymptomPrompt(ProfileFromRequest(req), symptoms)
	return s.generate(ctx, observer.BridgeSymptom, MsgSymptomNoCandidates, MsgSymptomUpstreamFailed,
		gemini.TextPart(text),
	)
}

// ProfileFromRequest maps the symptom request body onto the prompt profile
func ProfileFromRequest(req models.SymptomRequest) prompt.PatientProfile {
	return prompt.PatientProfile{
		Name:           req.Name.String(),
		Age:            req.Age.String(),
		Gender:         req.Gender.String(),
		Weight:         req.Weight.String(),
		Height:         req.Height.String(),
		BloodGroup:     req.BloodGroup.String(),
		Allergies:      req.Allergies.String(),
		MedicalHistory: req.MedicalHistory.String(),
		Medication:     req.Medication.String(),
	}
}

// generate performs the single upstream call of a bridge and applies the
// first-candidate policy.
func (s *diagnosisService) generate(ctx context.Context, bridge observer.Bridge, noCandidatesMsg, failedMsg string, parts ...gemini.Part) (string, error) {
	start := time.Now()
	resp, err := s.generator.GenerateContent(ctx, parts...)
	s.publish(ctx, observer.DiagnosisEvent{
		EventType:    observer.UpstreamCalled,
		Bridge:       bridge,
		UpstreamTime: time.Since(start),
		Success:      err == nil,
	})
	if err != nil {
		return "", apperrors.NewUpstreamError(failedMsg, err)
	}

	text, err := resp.FirstCandidateText()
	if err != nil {
		return "", apperrors.NewUpstreamError(noCandidatesMsg, err)
	}
	return text, nil
}

func (s *diagnosisService) begin(ctx context.Context, bridge observer.Bridge) time.Time {
	start := time.Now()
	s.publish(ctx, observer.DiagnosisEvent{EventType: observer.DiagnosisStarted, Bridge: bridge})
	return start
}

func (s *diagnosisService) finish(ctx context.Context, bridge observer.Bridge, start time.Time, err error) {
	event := observer.DiagnosisEvent{
		EventType:      observer.DiagnosisCompleted,
		Bridge:         bridge,
		ProcessingTime: time.Since(start),
		Success:        err == nil,
	}
	if err != nil {
		event.EventType = observer.DiagnosisFailed
		event.ErrorKind = string(apperrors.ErrorTypeInternal)
		event.ErrorMessage = err.Error()
		if appErr, ok := apperrors.As(err); ok {
			event.ErrorKind = string(appErr.Type)
		}
	}
	s.publish(ctx, event)
}

func (s *diagnosisService) publish(ctx context.Context, event observer.DiagnosisEvent) {
	if s.events == nil {
		return
	}
	event.RequestID = RequestIDFrom(ctx)
	s.events.NotifyObservers(ctx, event)
}
