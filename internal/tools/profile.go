package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/bytesec/byte/internal/user"
)

// ProfileUpdater applies long-term security profile updates. *user.Store
// satisfies it.
type ProfileUpdater interface {
	ApplyProfileUpdate(ctx context.Context, userID int64, upd user.ProfileUpdate) ([]string, error)
}

// NewProfileUpdate builds the update_user_security_profile capability, the
// assistant's long-term memory about the user.
func NewProfileUpdate(store ProfileUpdater) *Capability {
	return &Capability{
		name: "update_user_security_profile",
		description: "Updates the user's permanent security profile (long-term memory). " +
			"Use this when the user mentions important context that should be remembered forever.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"user_id": {
					Type:        genai.TypeString,
					Description: "The user's ID",
				},
				"technical_level": {
					Type:        genai.TypeString,
					Description: "User's technical expertise level: beginner, intermediate, or advanced",
				},
				"new_threat": {
					Type:        genai.TypeString,
					Description: "A specific threat the user is concerned about (e.g., \"phishing\", \"ransomware\")",
				},
				"new_incident": {
					Type:        genai.TypeString,
					Description: "A past security incident the user experienced (e.g., \"hacked via email\")",
				},
				"explanation_preference": {
					Type:        genai.TypeString,
					Description: "'simple' or 'detailed'",
				},
			},
			Required: []string{"user_id"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			userID, err := userIDArg(args)
			if err != nil {
				return nil, err
			}

			upd := user.ProfileUpdate{
				TechnicalLevel:        optionalStringArg(args, "technical_level"),
				NewThreat:             optionalStringArg(args, "new_threat"),
				NewIncident:           optionalStringArg(args, "new_incident"),
				ExplanationPreference: optionalStringArg(args, "explanation_preference"),
			}

			updates, err := store.ApplyProfileUpdate(ctx, userID, upd)
			if err != nil {
				return nil, fmt.Errorf("error updating profile: %w", err)
			}
			if len(updates) == 0 {
				return textResult("No profile fields were changed."), nil
			}
			return textResult("Successfully updated profile: " + strings.Join(updates, ", ")), nil
		},
	}
}

// userIDArg coerces the user_id argument, which the model may send as a
// string or a number.
func userIDArg(args map[string]any) (int64, error) {
	switch v := args["user_id"].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("user_id must be numeric, got %q", v)
		}
		return id, nil
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("missing required argument %q", "user_id")
	}
}
