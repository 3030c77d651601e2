package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"boletin-backend/internal/faults"
	"boletin-backend/internal/shared/server/respond"
)

// Bulletin editions are published on Argentine local time.
var bulletinZone = time.FixedZone("ART", -3*60*60)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 50
)

// Directory is the read/delete slice of the store used by HTTP handlers.
type Directory interface {
	Get(ctx context.Context, date string) (*Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Delete(ctx context.Context, date string) (bool, error)
}

// Handler wires HTTP handlers to the analysis service.
type Handler struct {
	Svc     *Service
	Dir     Directory
	Timeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, dir Directory, timeout time.Duration) *Handler {
	return &Handler{Svc: svc, Dir: dir, Timeout: timeout}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.analyze)
	rg.GET("/analyses/recent", h.recent)
	rg.GET("/analyses/:date", h.getByDate)
	rg.DELETE("/analyses/:date", h.deleteByDate)
	rg.POST("/analyses/:date/opinions", h.refreshOpinions)
}

// analyzeRequest tolerates force_refresh arriving as a boolean or as a
// truthy string.
type analyzeRequest struct {
	Date         string          `json:"date"`
	ForceRefresh json.RawMessage `json:"force_refresh"`
}

func (h *Handler) analyze(c *gin.Context) {
	var raw analyzeRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&raw); err != nil {
			respond.Fault(c, faults.New(faults.KindInputValidation,
				"request body is not valid JSON", nil))
			return
		}
	}

	date := raw.Date
	if date == "" {
		date = time.Now().In(bulletinZone).Format(DateLayout)
	}
	if env := validateDate(date); env != nil {
		respond.Fault(c, env)
		return
	}
	c.Set("analysisDate", date)

	req := Request{Date: date, ForceRefresh: coerceBool(raw.ForceRefresh)}

	ctx := c.Request.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	res := h.Svc.Handle(ctx, req)
	if res.Failure != nil {
		respond.FaultData(c, res.Failure, gin.H{"analysis": res.ErrorBody})
		return
	}

	message := "analysis completed"
	if res.Record.Metadata.FromCache {
		message = "analysis retrieved from cache"
	}
	respond.OK(c, gin.H{"analysis": res.Record}, message)
}

func (h *Handler) recent(c *gin.Context) {
	limit := defaultRecentLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respond.Fault(c, faults.New(faults.KindInputValidation,
				fmt.Sprintf("limit %q must be a positive integer", v), nil))
			return
		}
		limit = parsed
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records, err := h.Dir.Recent(c.Request.Context(), limit)
	if err != nil {
		respond.Fault(c, asEnvelope(err))
		return
	}
	respond.OK(c, gin.H{"analyses": records, "count": len(records)}, "")
}

func (h *Handler) getByDate(c *gin.Context) {
	date := c.Param("date")
	if !ValidDate(date) {
		respond.Fault(c, faults.New(faults.KindInputValidation,
			fmt.Sprintf("date %q must use YYYY-MM-DD", date), nil))
		return
	}

	rec, err := h.Dir.Get(c.Request.Context(), date)
	if err != nil {
		respond.Fault(c, asEnvelope(err))
		return
	}
	if rec == nil {
		respond.Fault(c, faults.New(faults.KindSourceNotFound,
			fmt.Sprintf("no stored analysis for %s", date), map[string]any{"date": date}))
		return
	}
	respond.OK(c, gin.H{"analysis": rec}, "")
}

func (h *Handler) deleteByDate(c *gin.Context) {
	date := c.Param("date")
	if !ValidDate(date) {
		respond.Fault(c, faults.New(faults.KindInputValidation,
			fmt.Sprintf("date %q must use YYYY-MM-DD", date), nil))
		return
	}

	deleted, err := h.Dir.Delete(c.Request.Context(), date)
	if err != nil {
		respond.Fault(c, asEnvelope(err))
		return
	}
	if !deleted {
		respond.Fault(c, faults.New(faults.KindSourceNotFound,
			fmt.Sprintf("no stored analysis for %s", date), map[string]any{"date": date}))
		return
	}
	respond.OK(c, gin.H{"date": date}, "analysis deleted")
}

func (h *Handler) refreshOpinions(c *gin.Context) {
	date := c.Param("date")
	if !ValidDate(date) {
		respond.Fault(c, faults.New(faults.KindInputValidation,
			fmt.Sprintf("date %q must use YYYY-MM-DD", date), nil))
		return
	}
	c.Set("analysisDate", date)

	ctx := c.Request.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	opinions, env := h.Svc.RefreshOpinions(ctx, date)
	if env != nil {
		respond.Fault(c, env)
		return
	}
	respond.OK(c, gin.H{"opinions": opinions, "count": len(opinions)}, "expert opinions updated")
}

// validateDate rejects malformed and future dates. The bulletin for a
// future date cannot exist yet.
func validateDate(date string) *faults.Envelope {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return faults.New(faults.KindInputValidation,
			fmt.Sprintf("date %q must use YYYY-MM-DD", date), nil)
	}
	today := time.Now().In(bulletinZone).Format(DateLayout)
	if parsed.Format(DateLayout) > today {
		return faults.New(faults.KindInputValidation,
			fmt.Sprintf("date %s is in the future", date), nil)
	}
	return nil
}

// coerceBool accepts true/false as JSON booleans or common string forms.
func coerceBool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "on":
			return true
		}
	}
	return false
}

// asEnvelope narrows an error to a classified failure, classifying on the
// fly if a raw error slipped through.
func asEnvelope(err error) *faults.Envelope {
	if env, ok := err.(*faults.Envelope); ok {
		return env
	}
	return faults.Classify(faults.OriginStore, err, nil)
}
