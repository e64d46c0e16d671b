package crm

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/crmgate/pkg/apperror"
)

// ClientStatus is the sales status of a client
type ClientStatus string

const (
	ClientActive   ClientStatus = "Active"
	ClientProspect ClientStatus = "Prospect"
	ClientInactive ClientStatus = "Inactive"
)

// ParseClientStatus accepts any casing of a known status
func ParseClientStatus(raw string) (ClientStatus, error) {
	for _, s := range []ClientStatus{ClientActive, ClientProspect, ClientInactive} {
		if strings.EqualFold(strings.TrimSpace(raw), string(s)) {
			return s, nil
		}
	}
	return "", apperror.Validation("unknown client status %q", raw)
}

// DealStage is the pipeline position of a deal
type DealStage string

const (
	StageLead        DealStage = "Lead"
	StageQualified   DealStage = "Qualified"
	StageProposal    DealStage = "Proposal"
	StageNegotiation DealStage = "Negotiation"
	StageWon         DealStage = "Won"
	StageLost        DealStage = "Lost"
)

var dealStages = []DealStage{StageLead, StageQualified, StageProposal, StageNegotiation, StageWon, StageLost}

// ParseDealStage accepts any casing of a known stage
func ParseDealStage(raw string) (DealStage, error) {
	for _, s := range dealStages {
		if strings.EqualFold(strings.TrimSpace(raw), string(s)) {
			return s, nil
		}
	}
	return "", apperror.Validation("unknown deal stage %q", raw)
}

// Client is a customer account owned by one salesperson. Monetary values
// are minor units.
type Client struct {
	ID                    int64        `json:"id"`
	Key                   uuid.UUID    `json:"key"`
	TenantID              int64        `json:"tenantId"`
	Name                  string       `json:"name"`
	Status                ClientStatus `json:"status"`
	AssignedSalesPersonID int64        `json:"assignedSalesPersonId"`
	PipelineStatusID      *int64       `json:"pipelineStatusId"`
	Email                 string       `json:"email"`
	Phone                 string       `json:"phone"`
	AnnualValue           int64        `json:"annualValue"`
	ForecastValue         int64        `json:"forecastValue"`
	CollectedValue        int64        `json:"collectedValue"`
	IsActive              bool         `json:"isActive"`
	CreatedAt             time.Time    `json:"createdAt"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// Deal is a sales opportunity on a client
type Deal struct {
	ID            int64     `json:"id"`
	Key           uuid.UUID `json:"key"`
	TenantID      int64     `json:"tenantId"`
	ClientID      int64     `json:"clientId"`
	OwnerID       int64     `json:"ownerId"`
	Title         string    `json:"title"`
	Value         int64     `json:"value"`
	Stage         DealStage `json:"stage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	clientOwnerID int64
}

// Task is a to-do assigned to a user, optionally about a client
type Task struct {
	ID            int64      `json:"id"`
	Key           uuid.UUID  `json:"key"`
	TenantID      int64      `json:"tenantId"`
	ClientID      *int64     `json:"clientId"`
	AssignedToID  int64      `json:"assignedToId"`
	Title         string     `json:"title"`
	DueAt         *time.Time `json:"dueAt"`
	IsDone        bool       `json:"isDone"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	clientOwnerID *int64
}

// Interaction is a logged touchpoint with a client
type Interaction struct {
	ID            int64     `json:"id"`
	Key           uuid.UUID `json:"key"`
	TenantID      int64     `json:"tenantId"`
	ClientID      int64     `json:"clientId"`
	OwnerID       int64     `json:"ownerId"`
	Kind          string    `json:"kind"`
	Notes         string    `json:"notes"`
	OccurredAt    time.Time `json:"occurredAt"`
	CreatedAt     time.Time `json:"createdAt"`
	clientOwnerID int64
}

// Message is a note from one user to another
type Message struct {
	ID          int64     `json:"id"`
	Key         uuid.UUID `json:"key"`
	TenantID    int64     `json:"tenantId"`
	SenderID    int64     `json:"senderId"`
	RecipientID int64     `json:"recipientId"`
	ClientID    *int64    `json:"clientId"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sentAt"`
}

// Product is a catalogue item. Prices are minor units.
type Product struct {
	ID        int64     `json:"id"`
	Key       uuid.UUID `json:"key"`
	TenantID  int64     `json:"tenantId"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	UnitPrice int64     `json:"unitPrice"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func requireName(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperror.Validation("%s is required", field)
	}
	if len(value) > max {
		return "", apperror.Validation("%s must be at most %d characters", field, max)
	}
	return value, nil
}

func requireNonNegative(field string, v int64) error {
	if v < 0 {
		return apperror.Validation("%s cannot be negative", field)
	}
	return nil
}

// CreateClientRequest is the body of POST /api/Client/Create. The owner
// defaults to the caller; TenantID is honoured for system admins only.
type CreateClientRequest struct {
	TenantID              *int64 `json:"tenantId,omitempty"`
	Name                  string `json:"name"`
	Status                string `json:"status"`
	AssignedSalesPersonID *int64 `json:"assignedSalesPersonId,omitempty"`
	PipelineStatusID      *int64 `json:"pipelineStatusId,omitempty"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	AnnualValue           int64  `json:"annualValue"`
	ForecastValue         int64  `json:"forecastValue"`
	CollectedValue        int64  `json:"collectedValue"`
}

func (r *CreateClientRequest) build() (*Client, error) {
	name, err := requireName("name", r.Name, 300)
	if err != nil {
		return nil, err
	}
	status := ClientActive
	if r.Status != "" {
		if status, err = ParseClientStatus(r.Status); err != nil {
			return nil, err
		}
	}
	for field, v := range map[string]int64{"annualValue": r.AnnualValue, "forecastValue": r.ForecastValue, "collectedValue": r.CollectedValue} {
		if err := requireNonNegative(field, v); err != nil {
			return nil, err
		}
	}
	return &Client{
		Name:             name,
		Status:           status,
		PipelineStatusID: r.PipelineStatusID,
		Email:            strings.TrimSpace(r.Email),
		Phone:            strings.TrimSpace(r.Phone),
		AnnualValue:      r.AnnualValue,
		ForecastValue:    r.ForecastValue,
		CollectedValue:   r.CollectedValue,
		IsActive:         status != ClientInactive,
	}, nil
}

// UpdateClientRequest is the body of PUT /api/Client/Update/{id}. Owners
// change through Reassign only.
type UpdateClientRequest struct {
	Name             *string `json:"name,omitempty"`
	Status           *string `json:"status,omitempty"`
	PipelineStatusID *int64  `json:"pipelineStatusId,omitempty"`
	Email            *string `json:"email,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	AnnualValue      *int64  `json:"annualValue,omitempty"`
	ForecastValue    *int64  `json:"forecastValue,omitempty"`
	CollectedValue   *int64  `json:"collectedValue,omitempty"`
}

func (r *UpdateClientRequest) apply(c *Client) error {
	if r.Name != nil {
		name, err := requireName("name", *r.Name, 300)
		if err != nil {
			return err
		}
		c.Name = name
	}
	if r.Status != nil {
		status, err := ParseClientStatus(*r.Status)
		if err != nil {
			return err
		}
		c.Status = status
		c.IsActive = status != ClientInactive
	}
	if r.PipelineStatusID != nil {
		c.PipelineStatusID = r.PipelineStatusID
	}
	if r.Email != nil {
		c.Email = strings.TrimSpace(*r.Email)
	}
	if r.Phone != nil {
		c.Phone = strings.TrimSpace(*r.Phone)
	}
	values := []struct {
		field string
		src   *int64
		dst   *int64
	}{
		{"annualValue", r.AnnualValue, &c.AnnualValue},
		{"forecastValue", r.ForecastValue, &c.ForecastValue},
		{"collectedValue", r.CollectedValue, &c.CollectedValue},
	}
	for _, v := range values {
		if v.src == nil {
			continue
		}
		if err := requireNonNegative(v.field, *v.src); err != nil {
			return err
		}
		*v.dst = *v.src
	}
	return nil
}

// ReassignRequest moves a record to a new owner
type ReassignRequest struct {
	AssignedSalesPersonID int64 `json:"assignedSalesPersonId"`
}

// ClientFilter narrows GET /api/Client/GetAll
type ClientFilter struct {
	Search          string
	Status          ClientStatus
	IncludeInactive bool
}

// CreateDealRequest is the body of POST /api/Deal/Create
type CreateDealRequest struct {
	ClientID int64  `json:"clientId"`
	OwnerID  *int64 `json:"ownerId,omitempty"`
	Title    string `json:"title"`
	Value    int64  `json:"value"`
	Stage    string `json:"stage"`
}

// UpdateDealRequest is the body of PUT /api/Deal/Update/{id}
type UpdateDealRequest struct {
	Title *string `json:"title,omitempty"`
	Value *int64  `json:"value,omitempty"`
	Stage *string `json:"stage,omitempty"`
}

// DealFilter narrows GET /api/Deal/GetAll
type DealFilter struct {
	ClientID *int64
	Stage    DealStage
}

// CreateTaskRequest is the body of POST /api/Task/Create
type CreateTaskRequest struct {
	ClientID     *int64     `json:"clientId,omitempty"`
	AssignedToID *int64     `json:"assignedToId,omitempty"`
	TenantID     *int64     `json:"tenantId,omitempty"`
	Title        string     `json:"title"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
}

// UpdateTaskRequest is the body of PUT /api/Task/Update/{id}
type UpdateTaskRequest struct {
	Title  *string    `json:"title,omitempty"`
	DueAt  *time.Time `json:"dueAt,omitempty"`
	IsDone *bool      `json:"isDone,omitempty"`
}

// TaskFilter narrows GET /api/Task/GetAll
type TaskFilter struct {
	ClientID *int64
	OpenOnly bool
}

// CreateInteractionRequest is the body of POST /api/Interaction/Create
type CreateInteractionRequest struct {
	ClientID   int64      `json:"clientId"`
	Kind       string     `json:"kind"`
	Notes      string     `json:"notes"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

// CreateMessageRequest is the body of POST /api/Message/Create
type CreateMessageRequest struct {
	TenantID    *int64 `json:"tenantId,omitempty"`
	RecipientID int64  `json:"recipientId"`
	ClientID    *int64 `json:"clientId,omitempty"`
	Body        string `json:"body"`
}

// MessageFilter narrows GET /api/Message/GetAll
type MessageFilter struct {
	ClientID *int64
}

// CreateProductRequest is the body of POST /api/Product/Create
type CreateProductRequest struct {
	TenantID  *int64 `json:"tenantId,omitempty"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unitPrice"`
}

// UpdateProductRequest is the body of PUT /api/Product/Update/{id}
type UpdateProductRequest struct {
	Name      *string `json:"name,omitempty"`
	SKU       *string `json:"sku,omitempty"`
	UnitPrice *int64  `json:"unitPrice,omitempty"`
	IsActive  *bool   `json:"isActive,omitempty"`
}
