package model

import "encoding/base64"

// Modality identifies the kind of content submitted for verification
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityImage  Modality = "image"
	ModalitySocial Modality = "social"
)

// SocialMode selects the prompt path for a social link
type SocialMode string

const (
	SocialModeText  SocialMode = "text"
	SocialModeImage SocialMode = "image"
)

// Request is the closed set of verification inputs
type Request interface {
	Modality() Modality
	isRequest()
}

// TextRequest verifies a free-text claim
type TextRequest struct {
	Content string `json:"content"`
}

// ImageRequest verifies an uploaded image, optionally with a claim about it
type ImageRequest struct {
	Data     []byte `json:"-"`
	FileName string `json:"file_name"`
	Claim    string `json:"claim,omitempty"`
}

// SocialRequest verifies a post or article by URL
type SocialRequest struct {
	URL   string     `json:"url"`
	Claim string     `json:"claim,omitempty"`
	Mode  SocialMode `json:"type,omitempty"`
}

func (TextRequest) Modality() Modality   { return ModalityText }
func (ImageRequest) Modality() Modality  { return ModalityImage }
func (SocialRequest) Modality() Modality { return ModalitySocial }

func (TextRequest) isRequest()   {}
func (ImageRequest) isRequest()  {}
func (SocialRequest) isRequest() {}

// Media is an inline binary attachment sent to the model alongside the prompt
type Media struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the payload
func (m Media) Base64() string {
	return base64.StdEncoding.EncodeToString(m.Data)
}

// DataURL returns the payload as a data: URI
func (m Media) DataURL() string {
	return "data:" + m.MIMEType + ";base64," + m.Base64()
}
