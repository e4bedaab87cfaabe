// Package verify runs the verification pipeline for text, image and social
// link requests on one shared backbone.
package verify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/credits"
	"github.com/ppiankov/truthguard/internal/history"
	"github.com/ppiankov/truthguard/internal/media"
	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/prompt"
)

// DefaultSocialClaim is used when a social link arrives without a claim
const DefaultSocialClaim = "verify the claim and check if it is true?"

// EvidenceSource returns search evidence for a query
type EvidenceSource interface {
	FetchEvidence(ctx context.Context, query string, maxResults int) ([]model.EvidenceItem, error)
}

// VerdictSource asks the model for a verdict. It must always return a
// well-formed result.
type VerdictSource interface {
	GetVerdict(ctx context.Context, prompt string, media *model.Media) model.VerificationResult
}

// PageResolver loads social pages and their images
type PageResolver interface {
	ResolvePage(ctx context.Context, pageURL string) (*media.Page, error)
	FetchImage(ctx context.Context, imageURL string) (*model.Media, error)
}

// Options tune the pipeline
type Options struct {
	MaxResults    int
	OnFailure     model.EvidenceFailurePolicy
	Cost          int
	RefundOnError bool
}

// OptionsFromConfig reads pipeline options from the config sections
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		MaxResults:    cfg.Search.MaxResults,
		OnFailure:     cfg.Search.OnFailure,
		Cost:          cfg.Credits.Cost,
		RefundOnError: cfg.Credits.RefundOnError,
	}
}

// Outcome is the result of one verification plus bookkeeping
type Outcome struct {
	Result model.VerificationResult

	// RecordID is set when the result was saved to history
	RecordID string

	// Credits is the remaining balance, or -1 when metering is off
	Credits int
}

// Service is the verification orchestrator
type Service struct {
	evidence EvidenceSource
	verdicts VerdictSource
	pages    PageResolver
	ledger   credits.Ledger
	history  history.Store
	opts     Options
	log      zerolog.Logger
}

// NewService creates an orchestrator. Metering and history are off until
// WithLedger and WithHistory are called.
func NewService(evidence EvidenceSource, verdicts VerdictSource, pages PageResolver, opts Options, log zerolog.Logger) *Service {
	if opts.OnFailure == "" {
		opts.OnFailure = model.EvidenceFail
	}
	return &Service{
		evidence: evidence,
		verdicts: verdicts,
		pages:    pages,
		opts:     opts,
		log:      log,
	}
}

// WithLedger enables credit metering
func (s *Service) WithLedger(l credits.Ledger) *Service {
	s.ledger = l
	return s
}

// WithHistory enables saving results
func (s *Service) WithHistory(h history.Store) *Service {
	s.history = h
	return s
}

// Metered reports whether requests need an account
func (s *Service) Metered() bool {
	return s.ledger != nil
}

// VerifyText verifies a free-text claim
func (s *Service) VerifyText(ctx context.Context, accountID, content string) (*Outcome, error) {
	return s.Run(ctx, accountID, model.TextRequest{Content: content})
}

// VerifyImage verifies an uploaded image against an optional claim
func (s *Service) VerifyImage(ctx context.Context, accountID string, req model.ImageRequest) (*Outcome, error) {
	return s.Run(ctx, accountID, req)
}

// VerifySocial verifies a social post or article by URL
func (s *Service) VerifySocial(ctx context.Context, accountID string, req model.SocialRequest) (*Outcome, error) {
	return s.Run(ctx, accountID, req)
}

// Run validates req, charges the account, runs the modality's pipeline and
// records the result. Upstream failures come back as the Error result with a
// nil error; only validation and credit problems are returned as errors.
// Once a request is valid it runs to completion even if ctx is cancelled;
// each upstream call stays bounded by its own timeout.
func (s *Service) Run(ctx context.Context, accountID string, req model.Request) (*Outcome, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	log := s.log.With().Str("modality", string(req.Modality())).Str("account_id", accountID).Logger()
	start := time.Now()

	out := &Outcome{Credits: -1}
	if s.ledger != nil {
		remaining, err := s.ledger.Deduct(ctx, accountID, s.opts.Cost)
		if err != nil {
			return nil, fmt.Errorf("charge account: %w", err)
		}
		out.Credits = remaining
	}

	var input model.Input
	switch r := req.(type) {
	case model.TextRequest:
		out.Result, input = s.runText(ctx, log, r)
	case model.ImageRequest:
		out.Result, input = s.runImage(ctx, log, r)
	case model.SocialRequest:
		out.Result, input = s.runSocial(ctx, log, r)
	}

	if out.Result.IsError() {
		s.refund(ctx, log, accountID, out)
	} else if s.history != nil {
		rec := &model.Record{AccountID: accountID, Input: input, Result: out.Result}
		if err := s.history.Save(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("failed to save verification")
		} else {
			out.RecordID = rec.ID
		}
	}

	log.Info().
		Int("truth_score", out.Result.TruthScore).
		Str("verdict", string(out.Result.Verdict)).
		Dur("duration", time.Since(start)).
		Msg("verification finished")

	return out, nil
}

func (s *Service) runText(ctx context.Context, log zerolog.Logger, r model.TextRequest) (model.VerificationResult, model.Input) {
	input := model.TextInput{Content: r.Content}

	evidence, failed := s.gather(ctx, log, r.Content)
	if failed != nil {
		return *failed, input
	}

	p := prompt.BuildTextPrompt(r.Content, evidence)
	return s.verdicts.GetVerdict(ctx, p, nil), input
}

func (s *Service) runImage(ctx context.Context, log zerolog.Logger, r model.ImageRequest) (model.VerificationResult, model.Input) {
	m, err := media.FromUpload(r.FileName, r.Data)
	input := model.ImageInput{FileName: r.FileName, MIMEType: m.MIMEType, Claim: r.Claim}
	if err != nil {
		return model.ErrorResult(err.Error()), input
	}

	// Without a claim there is nothing meaningful to search for
	var evidence []model.EvidenceItem
	claim := r.Claim
	if claim != "" {
		var failed *model.VerificationResult
		evidence, failed = s.gather(ctx, log, claim)
		if failed != nil {
			return *failed, input
		}
	}

	p := prompt.BuildImagePrompt(claim, evidence)
	return s.verdicts.GetVerdict(ctx, p, &m), input
}

func (s *Service) runSocial(ctx context.Context, log zerolog.Logger, r model.SocialRequest) (model.VerificationResult, model.Input) {
	input := model.SocialInput{URL: r.URL, Claim: r.Claim, Mode: r.Mode}

	page, err := s.pages.ResolvePage(ctx, r.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", r.URL).Msg("page fetch failed")
		return model.ErrorResult("Could not load the page: " + err.Error()), input
	}

	claim := media.EnrichClaim(page.Title, page.Description, r.Claim)

	evidence, failed := s.gather(ctx, log, claim)
	if failed != nil {
		return *failed, input
	}

	if r.Mode == model.SocialModeImage && page.ImageURL != "" {
		img, err := s.pages.FetchImage(ctx, page.ImageURL)
		if err != nil {
			log.Warn().Err(err).Str("image_url", page.ImageURL).Msg("image fetch failed")
			return model.ErrorResult("Could not load the page image: " + err.Error()), input
		}
		p := prompt.BuildImagePrompt(claim, evidence)
		return s.verdicts.GetVerdict(ctx, p, img), input
	}

	if r.Mode == model.SocialModeImage {
		log.Debug().Str("url", r.URL).Msg("no image on page, verifying as text")
	}
	p := prompt.BuildTextPrompt(claim, evidence)
	return s.verdicts.GetVerdict(ctx, p, nil), input
}

// gather fetches evidence. Under the fail policy a search error ends the
// verification with the returned Error result.
func (s *Service) gather(ctx context.Context, log zerolog.Logger, query string) ([]model.EvidenceItem, *model.VerificationResult) {
	evidence, err := s.evidence.FetchEvidence(ctx, query, s.opts.MaxResults)
	if err == nil {
		log.Debug().Int("evidence", len(evidence)).Msg("evidence gathered")
		return evidence, nil
	}

	if s.opts.OnFailure == model.EvidenceDegrade {
		log.Warn().Err(err).Msg("evidence search failed, continuing without evidence")
		return nil, nil
	}

	log.Error().Err(err).Msg("evidence search failed")
	failed := model.ErrorResult("Evidence search failed: " + err.Error())
	return nil, &failed
}

func (s *Service) refund(ctx context.Context, log zerolog.Logger, accountID string, out *Outcome) {
	if s.ledger == nil || !s.opts.RefundOnError || s.opts.Cost == 0 {
		return
	}
	bal, err := s.ledger.Add(ctx, accountID, s.opts.Cost)
	if err != nil {
		log.Error().Err(err).Msg("credit refund failed")
		return
	}
	out.Credits = bal
}

// Validate reports the *ValidationError Run would return for req, without
// running anything
func Validate(req model.Request) error {
	_, err := normalize(req)
	return err
}

// normalize trims fields, applies defaults and rejects incomplete requests
func normalize(req model.Request) (model.Request, error) {
	switch r := req.(type) {
	case model.TextRequest:
		r.Content = strings.TrimSpace(r.Content)
		if r.Content == "" {
			return nil, invalid("content", "Content is required")
		}
		return r, nil

	case model.ImageRequest:
		if len(r.Data) == 0 {
			return nil, invalid("file", "Image file is required")
		}
		r.Claim = strings.TrimSpace(r.Claim)
		return r, nil

	case model.SocialRequest:
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" {
			return nil, invalid("url", "URL is required")
		}
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid("url", "URL must be an absolute http or https link")
		}
		r.Claim = strings.TrimSpace(r.Claim)
		if r.Claim == "" {
			r.Claim = DefaultSocialClaim
		}
		switch r.Mode {
		case "":
			r.Mode = model.SocialModeText
		case model.SocialModeText, model.SocialModeImage:
		default:
			return nil, invalid("type", `Type must be "text" or "image"`)
		}
		return r, nil

	case nil:
		return nil, invalid("", "Request is empty")
	}
	return nil, invalid("", fmt.Sprintf("unsupported request %T", req))
}
