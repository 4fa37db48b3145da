package exercise

import (
	"fmt"
	"net/url"
	"time"
)

// Type can be one of:
//   - sit-ups
//   - vertical-jump
//   - shuttle-run
//   - endurance-run
type Type string

const (
	TypeSitUps       Type = "sit-ups"
	TypeVerticalJump Type = "vertical-jump"
	TypeShuttleRun   Type = "shuttle-run"
	TypeEnduranceRun Type = "endurance-run"
)

// FaceCaptureDuration is the recording length used for face verification captures.
const FaceCaptureDuration = 5 * time.Second

const defaultExpectedReps = 10

var All = []Type{
	TypeSitUps,
	TypeVerticalJump,
	TypeShuttleRun,
	TypeEnduranceRun,
}

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case TypeSitUps, TypeVerticalJump, TypeShuttleRun, TypeEnduranceRun:
		return true
	}
	return false
}

func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown exercise type: %s", s)
	}
	return t, nil
}

// APITag returns the exercise type tag the analysis service expects.
func (t Type) APITag() string {
	if t == TypeSitUps {
		return "sit-up"
	}
	return string(t)
}

// Endpoint returns the analysis service path, with query, for the exercise.
// Sit-ups use the dedicated cheat-aware endpoint.
func (t Type) Endpoint() string {
	if t == TypeSitUps {
		return "/calculate_situp?current_counter=0&current_status=false&break_on_cheat=true"
	}
	q := url.Values{}
	q.Set("exercise_type", t.APITag())
	return "/detect_from_video?" + q.Encode()
}

func (t Type) CaptureDuration() time.Duration {
	switch t {
	case TypeSitUps:
		return 60 * time.Second
	case TypeShuttleRun:
		return 30 * time.Second
	case TypeEnduranceRun:
		return 12 * time.Minute
	case TypeVerticalJump:
		return 60 * time.Second
	default:
		return 60 * time.Second
	}
}

// RequiresFaceVerification reports whether a verified face gates the exercise step.
func (t Type) RequiresFaceVerification() bool {
	return t == TypeSitUps
}

// ExpectedReps is the scoring denominator for an exercise, keyed by
// either the API tag or the catalogue identifier.
func ExpectedReps(tag string) int {
	switch tag {
	case "sit-up", string(TypeSitUps):
		return 20
	case string(TypeVerticalJump):
		return 3
	case string(TypeShuttleRun):
		return 1
	default:
		return defaultExpectedReps
	}
}

// FromAPITag maps an analysis service tag back to the catalogue type.
func FromAPITag(tag string) (Type, bool) {
	if tag == "sit-up" {
		return TypeSitUps, true
	}
	t := Type(tag)
	return t, t.IsValid()
}

func (t Type) DisplayName() string {
	switch t {
	case TypeSitUps:
		return "Sit-ups"
	case TypeVerticalJump:
		return "Vertical Jump"
	case TypeShuttleRun:
		return "Shuttle Run"
	case TypeEnduranceRun:
		return "Endurance Run"
	default:
		return "Exercise"
	}
}
