package domain

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
)

const (
	RoleManager    = "manager"
	RoleTeamLeader = "team_leader"
)

const (
	DocumentDeliveryNote = "delivery_note"
	DocumentReceipt      = "receipt"
	DocumentInvoice      = "invoice"
	DocumentOther        = "other"
)

// ValidStatus reports whether s is one of the lifecycle states.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved:
		return true
	}
	return false
}

// ValidDocumentType reports whether t is an accepted document classification.
func ValidDocumentType(t string) bool {
	switch t {
	case DocumentDeliveryNote, DocumentReceipt, DocumentInvoice, DocumentOther:
		return true
	}
	return false
}

type Log struct {
	ID                string     `json:"id"`
	Date              string     `json:"date" format:"date"`
	StartTime         string     `json:"start_time" format:"date-time"`
	EndTime           string     `json:"end_time" format:"date-time"`
	WorkDescription   string     `json:"work_description"`
	Weather           *string    `json:"weather,omitempty"`
	IssuesEncountered *string    `json:"issues_encountered,omitempty"`
	NextSteps         *string    `json:"next_steps,omitempty"`
	TeamLeaderID      string     `json:"team_leader_id"`
	ProjectID         string     `json:"project_id"`
	Employees         []string   `json:"employees"`
	MaterialsUsed     []Material `json:"materials_used"`
	Photos            []Photo    `json:"photos"`
	Documents         []Document `json:"documents"`
	Status            string     `json:"status" enum:"draft,submitted,approved"`
	ApprovedBy        *string    `json:"approved_by,omitempty"`
	ApprovedAt        *string    `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt         string     `json:"created_at" format:"date-time"`
	UpdatedAt         string     `json:"updated_at" format:"date-time"`
}

type Material struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Notes    *string `json:"notes,omitempty"`
}

type Photo struct {
	Path         string  `json:"path"`
	OriginalName string  `json:"original_name"`
	Description  *string `json:"description,omitempty"`
	UploadedAt   string  `json:"uploaded_at" format:"date-time"`
}

type Document struct {
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	Type         string `json:"type" enum:"delivery_note,receipt,invoice,other"`
	UploadedAt   string `json:"uploaded_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role" enum:"manager,team_leader"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Employee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	RelatedLogID *string `json:"related_log_id,omitempty"`
	IsRead       bool    `json:"is_read"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
