package models

// LoginRequest represents login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// CreateDocumentRequest represents document creation + assignment payload
type CreateDocumentRequest struct {
	Title          string        `json:"title" validate:"required"`
	FileName       string        `json:"file_name" validate:"required"`
	ContentType    string        `json:"content_type"`
	SizeBytes      int64         `json:"size_bytes"`
	StorageKey     string        `json:"storage_key"`
	Group          AssignedGroup `json:"assigned_group" validate:"required"`
	DistributorIDs []string      `json:"distributor_ids,omitempty"`
}

// CreateDistributorRequest provisions a distributor account
type CreateDistributorRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FullName    string `json:"full_name" validate:"required"`
	CompanyName string `json:"company_name" validate:"required"`
}

// DocumentView is a document decorated with its assignment and, for
// distributor callers, the derived per-pair state. State reads DONE when
// the assignment is DONE and the caller has no unread rows left; it is
// "nothing pending for you", not a personal download receipt.
type DocumentView struct {
	Document Document          `json:"document"`
	Group    AssignedGroup     `json:"assigned_group"`
	Status   AssignmentStatus  `json:"status"`
	State    DistributionState `json:"state,omitempty"`
	Unread   int               `json:"unread,omitempty"`
}

// DownloadGrant is the envelope returned for an authorized download.
// Serving the bytes is the storage layer's concern.
type DownloadGrant struct {
	DocumentID string           `json:"document_id"`
	FileName   string           `json:"file_name"`
	StorageKey string           `json:"storage_key"`
	Status     AssignmentStatus `json:"status"`
}
