package domain

import "time"

type SessionID string
type UserID string

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// AssessmentType selects which trend series a completed session feeds.
type AssessmentType string

const (
	AssessmentBaseline AssessmentType = "baseline"
	AssessmentCheckIn  AssessmentType = "checkin"
)

func (t AssessmentType) Valid() bool {
	return t == AssessmentBaseline || t == AssessmentCheckIn
}

type Timestamp = time.Time
