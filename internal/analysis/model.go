package analysis

import "time"

// SectionLegislation is the only bulletin section analyzed. The wire value
// matches the collection's historical documents.
const SectionLegislation = "legislacion_avisos_oficiales"

// StatusCompleted is the only status persisted for a finished record.
const StatusCompleted = "completed"

// DateLayout is the calendar-date format used as record identity.
const DateLayout = "2006-01-02"

// Impact levels for changes and relevance levels for opinions.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Record is the persisted analysis document for one calendar date.
// Date is the sole identity; a second write for the same date replaces
// the stored document.
type Record struct {
	Date            string    `bson:"date" json:"date"`
	Section         string    `bson:"section" json:"section"`
	SourceReference string    `bson:"source_reference" json:"source_reference"`
	Analysis        Body      `bson:"analysis" json:"analysis"`
	ExpertOpinions  []Opinion `bson:"expert_opinions" json:"expert_opinions"`
	Metadata        Metadata  `bson:"metadata" json:"metadata"`
}

// Metadata carries processing details for a record. FromCache is computed
// per response and never persisted.
type Metadata struct {
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	AnalysisVersion   string    `bson:"analysis_version" json:"analysis_version"`
	ModelUsed         string    `bson:"model_used" json:"model_used"`
	ProcessingSeconds float64   `bson:"processing_seconds" json:"processing_seconds"`
	Status            string    `bson:"status" json:"status"`
	Method            string    `bson:"method" json:"method"`
	OpinionsUpdatedAt time.Time `bson:"opinions_updated_at,omitempty" json:"opinions_updated_at,omitempty"`
	FromCache         bool      `bson:"-" json:"from_cache"`
}

// Body is the structured analysis produced by the engine. Missing upstream
// fields are filled with defaults rather than failing the record.
type Body struct {
	Summary         string   `bson:"summary" json:"summary"`
	Changes         []Change `bson:"changes" json:"changes"`
	EstimatedImpact string   `bson:"estimated_impact" json:"estimated_impact"`
	AffectedAreas   []string `bson:"affected_areas" json:"affected_areas"`
	Error           bool     `bson:"-" json:"error,omitempty"`
	ErrorMessage    string   `bson:"-" json:"error_message,omitempty"`
}

// Change is one normative change identified in the bulletin.
type Change struct {
	Kind                string `bson:"kind" json:"kind"`
	Number              string `bson:"number" json:"number"`
	Label               string `bson:"label" json:"label"`
	Title               string `bson:"title" json:"title"`
	Description         string `bson:"description" json:"description"`
	Impact              string `bson:"impact" json:"impact"`
	ImpactJustification string `bson:"impact_justification" json:"impact_justification"`
}

// Opinion is one expert opinion found in external media coverage.
type Opinion struct {
	Outlet      string `bson:"outlet" json:"outlet"`
	URL         string `bson:"url" json:"url"`
	Author      string `bson:"author" json:"author"`
	Title       string `bson:"title" json:"title"`
	Summary     string `bson:"summary" json:"summary"`
	PublishedAt string `bson:"published_at" json:"published_at"`
	Relevance   string `bson:"relevance" json:"relevance"`
}

// Request is a validated analysis request.
type Request struct {
	Date         string `json:"date"`
	ForceRefresh bool   `json:"force_refresh"`
}

// ValidDate reports whether a string is a well-formed calendar date.
func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}
