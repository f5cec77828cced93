package server

import (
	"encoding/json"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"admin,client"`
}

type CreateDeliverableRequest struct {
	ID          *string          `json:"id,omitempty"`
	Title       string           `json:"title"`
	Description *string          `json:"description,omitempty"`
	Type        string           `json:"type,omitempty" enum:"document,image,video,audio,design,code,presentation,spreadsheet,other"`
	Files       []domain.FileRef `json:"files,omitempty"`
}

type UpdateDeliverableRequest struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Type        *string           `json:"type,omitempty" enum:"document,image,video,audio,design,code,presentation,spreadsheet,other"`
	Files       *[]domain.FileRef `json:"files,omitempty"`
}

type ApproveRequest struct {
	Message string `json:"message,omitempty"`
}

type RequestChangesRequest struct {
	Feedback string `json:"feedback"`
}

type DeliverRequest struct {
	DeliveryNotes string           `json:"delivery_notes,omitempty"`
	FinalFiles    []domain.FileRef `json:"final_files,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type DeliverableResponse struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Type        string           `json:"type" enum:"document,image,video,audio,design,code,presentation,spreadsheet,other"`
	Status      string           `json:"status" enum:"draft,pending_review,needs_changes,approved,delivered"`
	Version     int              `json:"version"`
	Files       []domain.FileRef `json:"files"`
	SubmittedAt *string          `json:"submitted_at,omitempty" format:"date-time"`
	ApprovedAt  *string          `json:"approved_at,omitempty" format:"date-time"`
	DeliveredAt *string          `json:"delivered_at,omitempty" format:"date-time"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
	UpdatedAt   string           `json:"updated_at" format:"date-time"`
}

type ReviewNoteResponse struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	Version       int    `json:"version"`
	Action        string `json:"action" enum:"submit,approve,request_changes,deliver"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role" enum:"admin,client"`
	Note          string `json:"note"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type MembershipResponse struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"admin,client"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type InboxItemResponse struct {
	Deliverable DeliverableResponse `json:"deliverable"`
	Reason      string              `json:"reason"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedDeliverables struct {
	Items      []DeliverableResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func deliverableResponse(d domain.Deliverable) DeliverableResponse {
	return DeliverableResponse{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Title:       d.Title,
		Description: d.Description,
		Type:        d.Type,
		Status:      string(d.Status),
		Version:     d.Version,
		Files:       nonNilFiles(d.Files),
		SubmittedAt: d.SubmittedAt,
		ApprovedAt:  d.ApprovedAt,
		DeliveredAt: d.DeliveredAt,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func mapDeliverables(items []domain.Deliverable) []DeliverableResponse {
	out := make([]DeliverableResponse, 0, len(items))
	for _, d := range items {
		out = append(out, deliverableResponse(d))
	}
	return out
}

func noteResponse(n domain.ReviewNote) ReviewNoteResponse {
	return ReviewNoteResponse{
		ID:            n.ID,
		DeliverableID: n.DeliverableID,
		Version:       n.Version,
		Action:        string(n.Action),
		ActorID:       n.ActorID,
		ActorRole:     string(n.ActorRole),
		Note:          n.Note,
		CreatedAt:     n.CreatedAt,
	}
}

func membershipResponse(m domain.Membership) MembershipResponse {
	return MembershipResponse{
		ProjectID: m.ProjectID,
		ActorID:   m.ActorID,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func inboxItemResponse(item engine.InboxItem) InboxItemResponse {
	return InboxItemResponse{
		Deliverable: deliverableResponse(item.Deliverable),
		Reason:      item.Reason,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilFiles(in []domain.FileRef) []domain.FileRef {
	if in == nil {
		return []domain.FileRef{}
	}
	return in
}
