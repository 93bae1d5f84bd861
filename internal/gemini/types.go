package gemini

import "strings"

// GenerateContentRequest is the body of a generateContent call
type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part carries either text or inline binary data, never both.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is a base64 payload tagged with its content type
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerateContentResponse lists the candidate completions returned upstream
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// TextPart builds a text-only part
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlinePart builds an inline-data part from already encoded data
func InlinePart(mimeType, encoded string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: encoded}}
}

// FirstCandidateText returns the text of the first candidate's first part.
// Only the first candidate is ever considered.
func (r *GenerateContentResponse) FirstCandidateText() (string, error) {
	if r == nil || len(r.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 || strings.TrimSpace(parts[0].Text) == "" {
		return "", ErrNoCandidates
	}
	return parts[0].Text, nil
}
