package models

import "time"

// Role is the access level carried by a session
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleDistributor Role = "DISTRIBUTOR"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDistributor
}

// AccountStatus gates whether an account may authenticate
type AccountStatus string

const (
	StatusActive   AccountStatus = "ACTIVE"
	StatusInactive AccountStatus = "INACTIVE"
)

// AssignedGroup describes how a document is targeted
type AssignedGroup string

const (
	GroupSingle   AssignedGroup = "SINGLE"
	GroupMultiple AssignedGroup = "MULTIPLE"
	GroupAll      AssignedGroup = "ALL"
)

// AssignmentStatus is the global open-state of an assignment.
// DONE means "opened by someone", not a per-recipient read receipt;
// per-distributor state lives on Notification.Read.
type AssignmentStatus string

const (
	AssignmentPending AssignmentStatus = "PENDING"
	AssignmentDone    AssignmentStatus = "DONE"
)

// DistributionState is the derived per-(document, distributor) state
type DistributionState string

const (
	StateNotVisible DistributionState = "NOT_VISIBLE"
	StatePending    DistributionState = "PENDING"
	StateDone       DistributionState = "DONE"
)

// Identity is the resolved, authenticated actor for one request.
// Role and Status come from the session token claims and stay fixed
// for the lifetime of the session.
type Identity struct {
	UserID   string        `json:"user_id"`
	Email    string        `json:"email"`
	Role     Role          `json:"role"`
	FullName string        `json:"full_name"`
	Status   AccountStatus `json:"status"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

func (i *Identity) IsDistributor() bool {
	return i != nil && i.Role == RoleDistributor
}

// User is a credential record
type User struct {
	UserID       string        `json:"user_id" dynamodbav:"user_id"`
	Email        string        `json:"email" dynamodbav:"email"` // unique, GSI key
	PasswordHash string        `json:"-" dynamodbav:"password_hash"`
	FullName     string        `json:"full_name" dynamodbav:"full_name"`
	Role         Role          `json:"role" dynamodbav:"role"`
	Status       AccountStatus `json:"status" dynamodbav:"status"`
	CreatedAt    time.Time     `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" dynamodbav:"updated_at"`
}

// Identity derives the request identity from a credential record
func (u *User) Identity() Identity {
	return Identity{
		UserID:   u.UserID,
		Email:    u.Email,
		Role:     u.Role,
		FullName: u.FullName,
		Status:   u.Status,
	}
}

// Distributor is the resource-side record for a distributor account
type Distributor struct {
	DistributorID string        `json:"distributor_id" dynamodbav:"distributor_id"`
	UserID        string        `json:"user_id" dynamodbav:"user_id"`
	Email         string        `json:"email" dynamodbav:"email"` // GSI key
	CompanyName   string        `json:"company_name" dynamodbav:"company_name"`
	Status        AccountStatus `json:"status" dynamodbav:"status"`
	CreatedAt     time.Time     `json:"created_at" dynamodbav:"created_at"`
}

// Document is the metadata of an uploaded PDF; byte storage is external
type Document struct {
	DocumentID  string    `json:"document_id" dynamodbav:"document_id"`
	Title       string    `json:"title" dynamodbav:"title"`
	FileName    string    `json:"file_name" dynamodbav:"file_name"`
	ContentType string    `json:"content_type" dynamodbav:"content_type"`
	SizeBytes   int64     `json:"size_bytes" dynamodbav:"size_bytes"`
	StorageKey  string    `json:"-" dynamodbav:"storage_key"`
	UploadedBy  string    `json:"uploaded_by" dynamodbav:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Assignment binds a document to one, many, or all distributors.
// ALL-group visibility is a derived predicate: DistributorIDs stays empty
// and no per-distributor rows are materialized, so distributors created
// after the assignment still see the document.
type Assignment struct {
	DocumentID     string           `json:"document_id" dynamodbav:"document_id"`
	Group          AssignedGroup    `json:"assigned_group" dynamodbav:"assigned_group"`
	DistributorIDs []string         `json:"distributor_ids,omitempty" dynamodbav:"distributor_ids,omitempty"`
	Status         AssignmentStatus `json:"status" dynamodbav:"status"`
	CreatedAt      time.Time        `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" dynamodbav:"updated_at"`
}

// Targets reports whether the assignment covers the given distributor
func (a *Assignment) Targets(distributorID string) bool {
	if a.Group == GroupAll {
		return true
	}
	for _, id := range a.DistributorIDs {
		if id == distributorID {
			return true
		}
	}
	return false
}

// Notification is the per-distributor unread/read marker for a document.
// Read never regresses true to false.
type Notification struct {
	NotificationID string     `json:"notification_id" dynamodbav:"notification_id"`
	DocumentID     string     `json:"document_id" dynamodbav:"document_id"`
	DistributorID  string     `json:"distributor_id" dynamodbav:"distributor_id"` // GSI key
	Read           bool       `json:"read" dynamodbav:"read"`
	CreatedAt      time.Time  `json:"created_at" dynamodbav:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
}
