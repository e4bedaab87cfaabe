package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Input is the persisted description of what was verified.
// It is a closed union: TextInput, ImageInput or SocialInput.
type Input interface {
	Modality() Modality
	isInput()
}

// TextInput records a text verification
type TextInput struct {
	Content string `json:"content"`
}

// ImageInput records an image verification (the image bytes are not kept)
type ImageInput struct {
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	Claim    string `json:"claim,omitempty"`
}

// SocialInput records a social link verification
type SocialInput struct {
	URL   string     `json:"url"`
	Claim string     `json:"claim,omitempty"`
	Mode  SocialMode `json:"type"`
}

func (TextInput) Modality() Modality   { return ModalityText }
func (ImageInput) Modality() Modality  { return ModalityImage }
func (SocialInput) Modality() Modality { return ModalitySocial }

func (TextInput) isInput()   {}
func (ImageInput) isInput()  {}
func (SocialInput) isInput() {}

// Record is a stored verification used for history and sharing
type Record struct {
	ID        string
	AccountID string
	Input     Input
	Result    VerificationResult
	CreatedAt time.Time
}

type recordJSON struct {
	ID        string             `json:"id"`
	AccountID string             `json:"account_id,omitempty"`
	Modality  Modality           `json:"modality"`
	Input     json.RawMessage    `json:"input"`
	Result    VerificationResult `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

// MarshalJSON writes the record with a "modality" discriminator for Input
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Input == nil {
		return nil, fmt.Errorf("record %s has no input", r.ID)
	}
	in, err := json.Marshal(r.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		ID:        r.ID,
		AccountID: r.AccountID,
		Modality:  r.Input.Modality(),
		Input:     in,
		Result:    r.Result,
		CreatedAt: r.CreatedAt,
	})
}

// UnmarshalJSON restores the concrete Input type from the discriminator
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in, err := DecodeInput(raw.Modality, raw.Input)
	if err != nil {
		return err
	}
	*r = Record{
		ID:        raw.ID,
		AccountID: raw.AccountID,
		Input:     in,
		Result:    raw.Result,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}

// DecodeInput decodes a stored input payload for the given modality
func DecodeInput(m Modality, data []byte) (Input, error) {
	switch m {
	case ModalityText:
		var in TextInput
		err := json.Unmarshal(data, &in)
		return in, err
	case ModalityImage:
		var in ImageInput
		err := json.Unmarshal(data, &in)
		return in, err
	case ModalitySocial:
		var in SocialInput
		err := json.Unmarshal(data, &in)
		return in, err
	default:
		return nil, fmt.Errorf("unknown modality %q", m)
	}
}
