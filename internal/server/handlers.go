package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/truthguard/internal/credits"
	"github.com/ppiankov/truthguard/internal/history"
	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/verify"
)

type textBody struct {
	Content string `json:"content"`
}

type socialBody struct {
	URL   string `json:"url"`
	Claim string `json:"claim"`
	Query string `json:"query"`
	Type  string `json:"type"`
}

func (s *Server) verifyText(c *gin.Context) {
	var body textBody
	if !bindJSON(c, &body) {
		return
	}
	s.run(c, model.TextRequest{Content: body.Content})
}

func (s *Server) verifyImage(c *gin.Context) {
	if s.cfg.MaxUploadBytes > 0 {
		// Leave room for the other multipart fields
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes+64<<10)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}
	if s.cfg.MaxUploadBytes > 0 && fh.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image file is too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, err)
		return
	}

	claim := c.PostForm("query")
	if claim == "" {
		claim = c.PostForm("claim")
	}
	s.run(c, model.ImageRequest{Data: data, FileName: fh.Filename, Claim: claim})
}

func (s *Server) verifySocial(c *gin.Context) {
	var body socialBody
	if !bindJSON(c, &body) {
		return
	}
	claim := body.Claim
	if claim == "" {
		claim = body.Query
	}
	s.run(c, model.SocialRequest{
		URL:   body.URL,
		Claim: claim,
		Mode:  model.SocialMode(strings.ToLower(strings.TrimSpace(body.Type))),
	})
}

// run executes a verification and writes the result. Expected pipeline
// failures arrive as a 200 with the Error result.
func (s *Server) run(c *gin.Context, req model.Request) {
	if err := verify.Validate(req); err != nil {
		s.badRequest(c, err)
		return
	}

	accountID, ok := s.account(c, s.verifier.Metered())
	if !ok {
		return
	}

	out, err := s.verifier.Run(c.Request.Context(), accountID, req)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrValidation):
			s.badRequest(c, err)
		case errors.Is(err, credits.ErrInsufficientCredits):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits"})
		case errors.Is(err, credits.ErrUnknownAccount):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account required"})
		default:
			s.fail(c, err)
		}
		return
	}

	if out.RecordID != "" {
		c.Header("X-Verification-ID", out.RecordID)
	}
	if out.Credits >= 0 {
		c.Header("X-Credits-Remaining", strconv.Itoa(out.Credits))
	}
	c.JSON(http.StatusOK, out.Result)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	var invalid *verify.ValidationError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Message})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is disabled"})
		return
	}
	accountID, ok := s.account(c, true)
	if !ok {
		return
	}

	limit := s.limit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.history.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) sharedRecord(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is disabled"})
		return
	}

	rec, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Verification not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) balance(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Credits are disabled"})
		return
	}
	accountID, ok := s.account(c, true)
	if !ok {
		return
	}

	bal, err := s.ledger.Balance(c.Request.Context(), accountID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "credits": bal})
}

// account reads the account header and answers 401 when it is required
// but missing
func (s *Server) account(c *gin.Context, required bool) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(AccountHeader))
	if id == "" && required {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account required"})
		return "", false
	}
	return id, true
}

func (s *Server) fail(c *gin.Context, err error) {
	l := logger(c)
	l.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	if hub := sentryHub(c); hub != nil {
		hub.CaptureException(err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": failureMessage(c)})
}

// bindJSON decodes the body. An empty body decodes as the zero value so
// that field validation reports what is missing.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
	return false
}
