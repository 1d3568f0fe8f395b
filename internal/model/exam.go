package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam authored by a faculty member.
// Exams are read-only for the duration of an attempt.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      int        `json:"total_marks"`
	PassPercentage  float64    `json:"pass_percentage"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	AuthorID        int        `json:"author_id"`
	AuthorName      string     `json:"author_name,omitempty"`
	QuestionCount   int        `json:"question_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DurationSeconds returns the attempt length in seconds.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// WindowOpen reports whether t falls inside the exam's scheduled window.
// A missing bound is treated as unbounded.
func (e *Exam) WindowOpen(t time.Time) bool {
	if e.StartTime != nil && t.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && t.After(*e.EndTime) {
		return false
	}
	return true
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Description     string     `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	TotalMarks      int        `json:"total_marks" binding:"required,min=1"`
	PassPercentage  float64    `json:"pass_percentage" binding:"min=0,max=100"`
	StartTime       *time.Time `json:"start_time" binding:"omitempty"`
	EndTime         *time.Time `json:"end_time" binding:"omitempty,gtfield=StartTime"`
}

// UpdateExamRequest replaces an exam's settings.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Description     string     `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	TotalMarks      int        `json:"total_marks" binding:"required,min=1"`
	PassPercentage  float64    `json:"pass_percentage" binding:"min=0,max=100"`
	StartTime       *time.Time `json:"start_time" binding:"omitempty"`
	EndTime         *time.Time `json:"end_time" binding:"omitempty,gtfield=StartTime"`
}

// ExamPayload is the Redis-cached student paper (no correct answers).
type ExamPayload struct {
	ExamID    uuid.UUID  `json:"exam_id"`
	Questions []Question `json:"questions"`
}
