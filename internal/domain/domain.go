package domain

// Role identifies which side of the agency/client relationship an actor is on.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Action is a workflow transition request.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionApprove        Action = "approve"
	ActionRequestChanges Action = "request_changes"
	ActionDeliver        Action = "deliver"
)

// Status is a deliverable lifecycle state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusNeedsChanges  Status = "needs_changes"
	StatusApproved      Status = "approved"
	StatusDelivered     Status = "delivered"
)

// DeliverableTypes lists the accepted asset types.
var DeliverableTypes = []string{
	"document", "image", "video", "audio", "design",
	"code", "presentation", "spreadsheet", "other",
}

func ValidDeliverableType(t string) bool {
	for _, known := range DeliverableTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FileRef points at an uploaded asset. Storage itself is external.
type FileRef struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type,omitempty"`
}

type Deliverable struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type" enum:"document,image,video,audio,design,code,presentation,spreadsheet,other"`
	Status      Status    `json:"status" enum:"draft,pending_review,needs_changes,approved,delivered"`
	Version     int       `json:"version"`
	Files       []FileRef `json:"files"`
	SubmittedAt *string   `json:"submitted_at,omitempty" format:"date-time"`
	ApprovedAt  *string   `json:"approved_at,omitempty" format:"date-time"`
	DeliveredAt *string   `json:"delivered_at,omitempty" format:"date-time"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
}

// ReviewNote is the audit record attached to a transition: required feedback
// on request_changes, optional message on approve and deliver.
type ReviewNote struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	Version       int    `json:"version"`
	Action        Action `json:"action" enum:"submit,approve,request_changes,deliver"`
	ActorID       string `json:"actor_id"`
	ActorRole     Role   `json:"actor_role" enum:"admin,client"`
	Note          string `json:"note"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Membership attaches an actor to a project with a role. Clients only see
// deliverables of projects they are members of.
type Membership struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role" enum:"admin,client"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role" enum:"admin,client"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
