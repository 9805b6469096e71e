package models

import (
	"time"

	"gorm.io/datatypes"
)

// ApplicationStatus defines lifecycle states for club applications.
type ApplicationStatus string

const (
	// ApplicationStatusPending indicates the application is awaiting review.
	ApplicationStatusPending ApplicationStatus = "pending"
	// ApplicationStatusApproved indicates the application was accepted.
	ApplicationStatusApproved ApplicationStatus = "approved"
	// ApplicationStatusRejected indicates the application was denied.
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// IsTerminal reports whether no further review is expected.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// Application is a club-membership application. Each applicant owns at most one.
type Application struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	ApplicantID uint              `gorm:"not null;uniqueIndex:idx_applications_applicant" json:"applicant_id"`
	Applicant   *User             `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE" json:"applicant,omitempty"`
	Motivation  string            `gorm:"type:text;not null" json:"motivation"`
	Experience  string            `gorm:"type:text" json:"experience"`
	Instrument  string            `gorm:"size:64" json:"instrument"`
	FormData    datatypes.JSON    `json:"form_data,omitempty"`
	Status      ApplicationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at"`
	ReviewedBy  *uint             `json:"reviewed_by"`
}

// ApplicationForm configures the current recruitment cycle. The most recently
// created row is the current form.
type ApplicationForm struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	IsActive          bool           `gorm:"not null" json:"is_active"`
	MaxApplicants     int            `gorm:"not null;default:0" json:"max_applicants"`
	CurrentApplicants int            `gorm:"not null;default:0" json:"current_applicants"`
	FormQuestions     datatypes.JSON `json:"form_questions"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	UpdatedBy         *uint          `json:"updated_by"`
}

// FormQuestion is one entry of ApplicationForm.FormQuestions.
type FormQuestion struct {
	ID          int                  `json:"id" yaml:"id"`
	Type        string               `json:"type" yaml:"type"`
	Label       string               `json:"label" yaml:"label"`
	Placeholder string               `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required    bool                 `json:"required" yaml:"required"`
	Options     []FormQuestionOption `json:"options,omitempty" yaml:"options,omitempty"`
	Validation  map[string]any       `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// FormQuestionOption is a selectable value of a select question.
type FormQuestionOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// RecruitmentStatus is the public view of the capacity gate.
type RecruitmentStatus struct {
	Configured        bool `json:"configured"`
	IsActive          bool `json:"is_active"`
	MaxApplicants     int  `json:"max_applicants"`
	CurrentApplicants int  `json:"current_applicants"`
	Remaining         *int `json:"remaining"`
	IsFull            bool `json:"is_full"`
}
