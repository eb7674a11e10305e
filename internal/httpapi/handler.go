package httpapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clubcheckin/internal/attendance"
	"clubcheckin/internal/auth"
	"clubcheckin/internal/certificate"
	"clubcheckin/internal/directory"
	"clubcheckin/internal/jobs"
	"clubcheckin/internal/model"
	"clubcheckin/internal/notify"
)

// AuthConfig holds the operator token settings.
type AuthConfig struct {
	SigningKey  string
	Issuer      string
	OperatorKey string
	AccessTTL   time.Duration
}

// Handler serves the check-in and notification API.
type Handler struct {
	attendance   *attendance.Service
	certificates *certificate.Service
	directory    directory.Directory
	publisher    *jobs.Publisher
	reports      notify.ReportStore
	auth         AuthConfig
	log          *slog.Logger
}

// New wires a handler from its collaborators.
func New(att *attendance.Service, certs *certificate.Service, dir directory.Directory,
	pub *jobs.Publisher, reports notify.ReportStore, authCfg AuthConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		attendance:   att,
		certificates: certs,
		directory:    dir,
		publisher:    pub,
		reports:      reports,
		auth:         authCfg,
		log:          logger,
	}
}

// Register mounts the versioned routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/operators/token", h.IssueOperatorToken)

	scan := v1.Group("", auth.RequireRole(h.auth.SigningKey, h.auth.Issuer, auth.RoleScanner))
	scan.POST("/events/:id/checkins", h.CheckIn)

	admin := v1.Group("", auth.RequireRole(h.auth.SigningKey, h.auth.Issuer, auth.RoleAdmin))
	admin.POST("/registrations/:id/credential", h.IssueCredential)
	admin.GET("/events/:id/attendance", h.Attendance)
	admin.POST("/events/:id/certificates", h.IssueCertificates)
	admin.POST("/events/:id/certificates/notify", h.ResendCertificates)
	admin.POST("/events/:id/announcements", h.Announce)
	admin.POST("/events/:id/updates", h.Update)
	admin.GET("/dispatches/:id", h.Dispatch)
}

// ---------- Operators ----------

type tokenRequest struct {
	OperatorID  string `json:"operator_id" binding:"required"`
	Role        string `json:"role" binding:"required"`
	OperatorKey string `json:"operator_key" binding:"required"`
}

func (h *Handler) IssueOperatorToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.OperatorKey), []byte(h.auth.OperatorKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
		return
	}
	if !auth.ValidRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be scanner or admin"})
		return
	}
	tok, err := auth.Issue(req.OperatorID, req.Role, h.auth.Issuer, h.auth.SigningKey, h.auth.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": tok.AccessToken, "expires_at": tok.ExpiresAt.Unix()})
}

// ---------- Credentials & check-in ----------

func (h *Handler) IssueCredential(c *gin.Context) {
	ctx := c.Request.Context()
	reg, err := h.directory.Registration(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	cred, err := h.attendance.IssueCredential(ctx, reg)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if cred.Reissued {
		status = http.StatusOK
	}
	c.JSON(status, cred)
}

type checkInRequest struct {
	Payload string `json:"payload" binding:"required"`
}

func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.attendance.Confirm(c.Request.Context(), req.Payload, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == attendance.OutcomeRejected {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

func (h *Handler) Attendance(c *gin.Context) {
	recs, err := h.attendance.ListByEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	present := 0
	for _, r := range recs {
		if r.Status == attendance.StatusPresent {
			present++
		}
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"event_id": c.Param("id"), "total": len(recs), "present": present, "records": recs})
}

// ---------- Certificates ----------

type certificateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	// RollNumbers is the manual selection path; when empty the scan-derived
	// attendance list is used.
	RollNumbers []string `json:"roll_numbers"`
}

func (h *Handler) IssueCertificates(c *gin.Context) {
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	eventID := c.Param("id")
	if _, err := h.directory.Event(ctx, eventID); err != nil {
		h.fail(c, err)
		return
	}

	rolls := req.RollNumbers
	if len(rolls) == 0 {
		present, err := h.attendance.PresentRollNumbers(ctx, eventID)
		if err != nil {
			h.fail(c, err)
			return
		}
		rolls = present
	}

	report, err := h.certificates.Issue(ctx, certificate.IssueRequest{
		EventID:     eventID,
		Title:       req.Title,
		Description: req.Description,
		RollNumbers: rolls,
	})
	if errors.Is(err, certificate.ErrBatchInsert) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(report.Issued) == 0 {
		c.JSON(http.StatusOK, gin.H{"report": report})
		return
	}

	jobID, err := h.publisher.PublishCertificateReady(ctx, jobs.CertificateReady{
		EventID:     eventID,
		Title:       req.Title,
		Description: req.Description,
		RollNumbers: report.Issued,
		IssuedAt:    time.Now().UTC(),
	})
	if err != nil {
		h.log.Error("certificate mail not queued", "event_id", eventID, "error", err)
		c.JSON(http.StatusCreated, gin.H{"report": report, "notification_error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": report, "job_id": jobID})
}

type resendRequest struct {
	RollNumbers []string `json:"roll_numbers"`
}

// ResendCertificates queues certificate mail for already issued
// certificates, all of them or the listed roll numbers.
func (h *Handler) ResendCertificates(c *gin.Context) {
	var req resendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	eventID := c.Param("id")
	recs, err := h.certificates.ListByEvent(ctx, eventID)
	if err != nil {
		h.fail(c, err)
		return
	}
	want := map[string]bool{}
	for _, r := range req.RollNumbers {
		want[model.NormalizeRollNumber(r)] = true
	}
	job := jobs.CertificateReady{EventID: eventID}
	for _, rec := range recs {
		if len(want) > 0 && !want[rec.RollNumber] {
			continue
		}
		job.RollNumbers = append(job.RollNumbers, rec.RollNumber)
		job.Title, job.Description, job.IssuedAt = rec.Title, rec.Description, rec.IssuedAt
	}
	if len(job.RollNumbers) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no issued certificates match"})
		return
	}
	jobID, err := h.publisher.PublishCertificateReady(ctx, job)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "recipients": len(job.RollNumbers)})
}

// ---------- Notifications ----------

func (h *Handler) Announce(c *gin.Context) {
	ctx := c.Request.Context()
	ev, err := h.directory.Event(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	jobID, err := h.publisher.PublishNewEvent(ctx, jobs.NewEvent{EventID: ev.ID})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

type updateRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	ev, err := h.directory.Event(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	jobID, err := h.publisher.PublishEventUpdate(ctx, jobs.EventUpdate{EventID: ev.ID, Note: req.Message})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (h *Handler) Dispatch(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("format") == "csv" {
		c.Header("Content-Disposition", `attachment; filename="dispatch-`+report.JobID+`.csv"`)
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := report.WriteCSV(c.Writer); err != nil {
			h.log.Error("csv export failed", "job_id", report.JobID, "error", err)
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

// fail maps domain errors to status codes; anything unrecognised is a
// store or dependency failure.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, attendance.ErrNotFound), errors.Is(err, notify.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrInvalidRegistration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	}
}
