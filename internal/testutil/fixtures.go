package testutil

import (
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dec parses a decimal literal, panicking on bad input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date parses a YYYY-MM-DD literal, panicking on bad input.
func Date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Person options
type PersonOption func(*domain.Person)

func WithRole(role string) PersonOption {
	return func(p *domain.Person) {
		p.Role = role
	}
}

func NewTestPerson(name string, opts ...PersonOption) *domain.Person {
	p := &domain.Person{
		ID:   uuid.New().String(),
		Name: name,
		Role: "member",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project options
type ProjectOption func(*domain.Project)

func WithProjectEstimate(s string) ProjectOption {
	return func(p *domain.Project) {
		p.Estimate = Dec(s)
		p.Check = p.Scheduled.Sub(p.Estimate)
	}
}

func WithProjectDates(start, end string) ProjectOption {
	return func(p *domain.Project) {
		s, e := Date(start), Date(end)
		p.StartDate = &s
		p.EndDate = &e
	}
}

func NewTestProject(name string, opts ...ProjectOption) *domain.Project {
	now := time.Now().UTC()
	p := &domain.Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func NewTestCategory(projectID, name string, position int) *domain.Category {
	return &domain.Category{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
		Position:  position,
	}
}

func NewTestMilestone(projectID, name string) *domain.Milestone {
	return &domain.Milestone{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
	}
}

// WorkItem options
type WorkItemOption func(*domain.WorkItem)

func WithEstimate(s string) WorkItemOption {
	return func(w *domain.WorkItem) {
		w.Estimate = Dec(s)
		w.Check = w.Scheduled.Sub(w.Estimate)
	}
}

func WithAssignee(personID string) WorkItemOption {
	return func(w *domain.WorkItem) {
		w.AssigneeID = &personID
	}
}

func WithCategory(categoryID string) WorkItemOption {
	return func(w *domain.WorkItem) {
		w.CategoryID = &categoryID
	}
}

func WithColor(c domain.Color) WorkItemOption {
	return func(w *domain.WorkItem) {
		w.Color = c
	}
}

func WithCreatedAt(t time.Time) WorkItemOption {
	return func(w *domain.WorkItem) {
		w.CreatedAt = t
		w.UpdatedAt = t
	}
}

func NewTestWorkItem(projectID, subject string, opts ...WorkItemOption) *domain.WorkItem {
	now := time.Now().UTC()
	w := &domain.WorkItem{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}
