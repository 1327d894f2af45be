package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/middleware"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/pipeline"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// Analyzer runs the enforcement pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// AnalyzeHandler serves POST /api/analyze.
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *security.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler.
func NewAnalyzeHandler(analyzer Analyzer, logger *security.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, logger: logger}
}

// analyzeRequest is the wire form of pipeline.Request. apply_policies defaults to true.
type analyzeRequest struct {
	Text          string           `json:"text"`
	Findings      []models.Finding `json:"findings"`
	SourceIP      string           `json:"source_ip"`
	SourceUser    string           `json:"source_user"`
	SourceDevice  string           `json:"source_device"`
	ApplyPolicies *bool            `json:"apply_policies"`
}

// Analyze evaluates the posted findings against the active policies.
//
// Source fields missing from the body are taken from the caller: the client IP,
// the user asserted by the gateway and the device header.
//
// Responses:
//   - 200: pipeline.Response
//   - 400: undecodable body or oversized input
func (h *AnalyzeHandler) Analyze(c *fiber.Ctx) error {
	var body analyzeRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	caller := middleware.Caller(c)
	req := pipeline.Request{
		Text:          body.Text,
		Findings:      body.Findings,
		SourceIP:      body.SourceIP,
		SourceUser:    body.SourceUser,
		SourceDevice:  body.SourceDevice,
		ApplyPolicies: body.ApplyPolicies == nil || *body.ApplyPolicies,
	}
	if req.SourceIP == "" {
		req.SourceIP = caller.IP
	}
	if req.SourceUser == "" {
		req.SourceUser = caller.User
	}
	if req.SourceDevice == "" {
		req.SourceDevice = c.Get(middleware.HeaderDevice)
	}

	resp, err := h.analyzer.Analyze(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(resp)
}
