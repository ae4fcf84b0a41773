// Package user manages accounts and long-term security profiles. The
// profile is the assistant's persistent memory about a user: how technical
// they are, which threats they worry about, and how they like things
// explained.
package user

import (
	"fmt"
	"strings"
	"time"
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SecurityProfile is the long-term memory attached to a user.
type SecurityProfile struct {
	UserID                int64     `json:"user_id"`
	TechnicalLevel        string    `json:"technical_level"`
	CommonThreats         []string  `json:"common_threats"`
	PlatformsUsed         []string  `json:"platforms_used"`
	PastIncidents         []string  `json:"past_incidents"`
	ExplanationPreference string    `json:"explanation_preference"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Summary renders the profile for inclusion in the system prompt.
func (p *SecurityProfile) Summary() string {
	threats := "None"
	if len(p.CommonThreats) > 0 {
		threats = strings.Join(p.CommonThreats, ", ")
	}
	return fmt.Sprintf("Technical Level: %s\nCommon Threats: %s\nExplanation Preference: %s",
		p.TechnicalLevel, threats, p.ExplanationPreference)
}

// ProfileUpdate carries the optional profile fields the assistant may set.
// Empty fields are left untouched.
type ProfileUpdate struct {
	TechnicalLevel        string
	NewThreat             string
	NewIncident           string
	ExplanationPreference string
}
