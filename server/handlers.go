package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/access-assistant/backend/analyzer"
	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/coordinator"
	"github.com/access-assistant/backend/workspace"
)

type analyzeRequest struct {
	Content string `json:"content"`
}

type suggestFixRequest struct {
	Content string         `json:"content"`
	Issue   analyzer.Issue `json:"issue"`
	BaseURL string         `json:"baseUrl"`
}

type documentRequest struct {
	Content string `json:"content"`
	BaseURL string `json:"baseUrl"`
}

type contentRequest struct {
	Content string  `json:"content"`
	BaseURL *string `json:"baseUrl"`
}

func (s *Server) health(c *gin.Context) {
	s.logger.WithField("client", c.ClientIP()).Debug("Health check request received")
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"provider": s.deps.Provider,
	})
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(c, "Content is required")
		return
	}

	report, err := s.deps.Analyzer.Analyze(c.Request.Context(), req.Content)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.trackReport(report)
	c.JSON(http.StatusOK, report)
}

func (s *Server) suggestFix(c *gin.Context) {
	var req suggestFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(c, "Content is required")
		return
	}

	w := s.deps.Coordinator.SuggestFix(c.Request.Context(), req.Content, req.Issue, coordinator.WithBaseURL(req.BaseURL))
	s.writeWorkflow(c, w)
}

func (s *Server) createDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	doc := s.deps.Documents.Create(req.Content, req.BaseURL)
	c.JSON(http.StatusCreated, doc.Snapshot())
}

func (s *Server) getDocument(c *gin.Context) {
	doc, ok := s.document(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc.Snapshot())
}

func (s *Server) updateContent(c *gin.Context) {
	doc, ok := s.document(c)
	if !ok {
		return
	}

	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	doc.SetContent(req.Content)
	if req.BaseURL != nil {
		doc.SetBaseURL(*req.BaseURL)
	}
	c.JSON(http.StatusOK, doc.Snapshot())
}

func (s *Server) analyzeDocument(c *gin.Context) {
	doc, ok := s.document(c)
	if !ok {
		return
	}
	if strings.TrimSpace(doc.Content()) == "" {
		badRequest(c, "Content is required")
		return
	}

	content, err := doc.BeginAnalysis()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "An analysis is already in progress"})
		return
	}

	completed := false
	defer func() {
		// Also runs when Analyze panics, so the document never stays locked
		if !completed {
			doc.FailAnalysis()
		}
	}()

	report, err := s.deps.Analyzer.Analyze(c.Request.Context(), content)
	if err != nil {
		s.writeError(c, err)
		return
	}

	doc.CompleteAnalysis(report)
	completed = true
	s.trackReport(report)
	c.JSON(http.StatusOK, report)
}

func (s *Server) fixIssue(c *gin.Context) {
	doc, ok := s.document(c)
	if !ok {
		return
	}

	issue, ok := doc.Issue(c.Param("issueId"))
	if !ok {
		notFound(c, "Issue not found")
		return
	}

	w := s.deps.Coordinator.SuggestFix(c.Request.Context(), doc.Content(), issue, coordinator.WithBaseURL(doc.BaseURL()))
	doc.TrackWorkflow(w)
	s.writeWorkflow(c, w)
}

func (s *Server) getWorkflow(c *gin.Context) {
	_, w, ok := s.workflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) applyWorkflow(c *gin.Context) {
	doc, w, ok := s.workflow(c)
	if !ok {
		return
	}

	if err := w.Apply(doc); err != nil {
		s.writeTransitionError(c, w, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workflow": w,
		"document": doc.Snapshot(),
	})
}

func (s *Server) dismissWorkflow(c *gin.Context) {
	doc, w, ok := s.workflow(c)
	if !ok {
		return
	}

	if err := w.Dismiss(); err != nil {
		s.writeTransitionError(c, w, err)
		return
	}
	doc.ForgetWorkflow(w.ID)
	c.JSON(http.StatusOK, gin.H{
		"workflow": w,
		"document": doc.Snapshot(),
	})
}

func (s *Server) statistics(c *gin.Context) {
	result := gin.H{}
	if s.deps.Statistics != nil {
		for k, v := range s.deps.Statistics.GetStatistics() {
			result[k] = v
		}
	}
	if s.deps.Usage != nil {
		result["currentMonth"] = s.deps.Usage.GetCurrentStats()
		result["months"] = s.deps.Usage.GetAllMonths()
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) monthlyStatistics(c *gin.Context) {
	if s.deps.Usage == nil {
		notFound(c, "Usage statistics are disabled")
		return
	}
	month, ok := s.deps.Usage.GetMonthlyStats(c.Param("month"))
	if !ok {
		notFound(c, "No statistics for this month")
		return
	}
	c.JSON(http.StatusOK, month)
}

func (s *Server) document(c *gin.Context) (*workspace.Document, bool) {
	doc, ok := s.deps.Documents.Get(c.Param("id"))
	if !ok {
		notFound(c, "Document not found")
		return nil, false
	}
	return doc, true
}

func (s *Server) workflow(c *gin.Context) (*workspace.Document, *coordinator.Workflow, bool) {
	doc, ok := s.document(c)
	if !ok {
		return nil, nil, false
	}
	w, ok := doc.Workflow(c.Param("workflowId"))
	if !ok {
		notFound(c, "Workflow not found")
		return nil, nil, false
	}
	return doc, w, true
}

func (s *Server) trackReport(report *analyzer.Report) {
	if s.deps.Statistics == nil {
		return
	}
	categories := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		categories = append(categories, string(issue.Category()))
	}
	s.deps.Statistics.TrackIssueCategories(categories)
}

// writeWorkflow answers 200 for a workflow waiting for confirmation and the status of
// its failure kind otherwise. The workflow is included either way.
func (s *Server) writeWorkflow(c *gin.Context, w *coordinator.Workflow) {
	err := w.Err()
	if err == nil {
		c.JSON(http.StatusOK, w)
		return
	}

	body := errorBody(err)
	body["workflow"] = w
	kind, _ := apperr.KindOf(err)
	c.JSON(apperr.HTTPStatus(kind), body)
}

func (s *Server) writeTransitionError(c *gin.Context, w *coordinator.Workflow, err error) {
	if errors.Is(err, coordinator.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "Workflow is not waiting for confirmation",
			"workflow": w,
		})
		return
	}
	s.writeError(c, err)
}

func (s *Server) writeError(c *gin.Context, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
		return
	}
	c.JSON(apperr.HTTPStatus(kind), errorBody(err))
}

func errorBody(err error) gin.H {
	kind, _ := apperr.KindOf(err)
	body := gin.H{
		"error": apperr.UserMessage(kind),
		"kind":  kind,
	}
	var e *apperr.Error
	if errors.As(err, &e) && e.Detail != "" {
		body["detail"] = e.Detail
	}
	return body
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"error": msg})
}
