package results

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/antonholmquist/jason"
)

// implicitFrameRate is used to derive frame timestamps when the payload carries none.
const implicitFrameRate = 30.0

var ErrNoPayload = errors.New("no analysis payload")

// Shape can be one of:
//   - legacy: frame result array, no cheat detection
//   - current: cheat-aware shape, carries both success and cheat_detected
//   - none: no payload at all
type Shape string

const (
	ShapeNone    Shape = "none"
	ShapeLegacy  Shape = "legacy"
	ShapeCurrent Shape = "current"
)

type CheatFlag struct {
	IsCheating bool     `json:"isCheating"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Frame is one analysed video frame as reported by the analysis service.
type Frame struct {
	Index             int        `json:"index"`
	Timestamp         float64    `json:"timestamp"`
	RepCounter        int        `json:"repCounter"`
	FormCorrect       bool       `json:"formCorrect"`
	JointAngle        float64    `json:"jointAngle"`
	LandmarksDetected bool       `json:"landmarksDetected"`
	Cheat             *CheatFlag `json:"cheat,omitempty"`
}

type LegacyPayload struct {
	ExerciseType string
	FinalCounter int
	TotalFrames  int
	Frames       []Frame
}

type CurrentPayload struct {
	Success       bool
	CheatDetected bool
	CheatReasons  []string
	Message       string
	ExerciseType  string
	FinalCounter  int
	TotalFrames   int
	Frames        []Frame
}

// Payload is a detected analysis response. Exactly one of Legacy and Current is set.
type Payload struct {
	Legacy  *LegacyPayload
	Current *CurrentPayload
}

func (p Payload) Shape() Shape {
	switch {
	case p.Current != nil:
		return ShapeCurrent
	case p.Legacy != nil:
		return ShapeLegacy
	default:
		return ShapeNone
	}
}

// Detect classifies a raw analysis response before any other field is read:
// it is the current shape iff both success and cheat_detected are booleans.
func Detect(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{}, ErrNoPayload
	}

	obj, err := jason.NewObjectFromBytes(trimmed)
	if err != nil {
		return Payload{}, fmt.Errorf("parse analysis payload: %w", err)
	}

	success, successErr := obj.GetBoolean("success")
	cheatDetected, cheatErr := obj.GetBoolean("cheat_detected")
	if successErr == nil && cheatErr == nil {
		return Payload{Current: parseCurrent(obj, success, cheatDetected)}, nil
	}

	return Payload{Legacy: parseLegacy(obj)}, nil
}

func parseLegacy(obj *jason.Object) *LegacyPayload {
	frames := parseFrames(obj)
	return &LegacyPayload{
		ExerciseType: optString(obj, "exercise_type"),
		FinalCounter: finalCounter(obj, frames),
		TotalFrames:  optInt(obj, len(frames), "total_frames"),
		Frames:       frames,
	}
}

func parseCurrent(obj *jason.Object, success, cheatDetected bool) *CurrentPayload {
	frames := parseFrames(obj)

	reasons, _ := obj.GetStringArray("cheat_reasons")
	for _, f := range frames {
		if f.Cheat == nil {
			continue
		}
		reasons = append(reasons, f.Cheat.Reasons...)
	}

	return &CurrentPayload{
		Success:       success,
		CheatDetected: cheatDetected,
		CheatReasons:  dedupe(reasons),
		Message:       optString(obj, "message"),
		ExerciseType:  optString(obj, "exercise_type"),
		FinalCounter:  finalCounter(obj, frames),
		TotalFrames:   optInt(obj, len(frames), "total_frames"),
		Frames:        frames,
	}
}

func parseFrames(obj *jason.Object) []Frame {
	frameObjs, err := obj.GetObjectArray("frame_results")
	if err != nil {
		return nil
	}

	frames := make([]Frame, 0, len(frameObjs))
	for i, fo := range frameObjs {
		index := optInt(fo, optInt(fo, i, "frame"), "frame_index")
		frame := Frame{
			Index:             index,
			Timestamp:         optFloat(fo, float64(index)/implicitFrameRate, "timestamp"),
			RepCounter:        optInt(fo, optInt(fo, 0, "counter"), "rep_counter"),
			FormCorrect:       optBool(fo, optBool(fo, false, "form_correct"), "correct_form"),
			JointAngle:        optFloat(fo, optFloat(fo, 0, "angle"), "joint_angle"),
			LandmarksDetected: optBool(fo, true, "landmarks_detected"),
		}

		if cheatObj, err := fo.GetObject("cheat_detection"); err == nil {
			frameReasons, _ := cheatObj.GetStringArray("reasons")
			frame.Cheat = &CheatFlag{
				IsCheating: optBool(cheatObj, false, "is_cheating"),
				Reasons:    frameReasons,
			}
		}

		frames = append(frames, frame)
	}

	return frames
}

// finalCounter prefers the payload's counter, falling back to the highest per-frame counter.
func finalCounter(obj *jason.Object, frames []Frame) int {
	maxCounter := 0
	for _, f := range frames {
		if f.RepCounter > maxCounter {
			maxCounter = f.RepCounter
		}
	}
	return optInt(obj, maxCounter, "final_counter")
}

func optString(obj *jason.Object, key string) string {
	s, _ := obj.GetString(key)
	return s
}

func optBool(obj *jason.Object, fallback bool, key string) bool {
	b, err := obj.GetBoolean(key)
	if err != nil {
		return fallback
	}
	return b
}

func optFloat(obj *jason.Object, fallback float64, key string) float64 {
	f, err := obj.GetFloat64(key)
	if err != nil {
		return fallback
	}
	return f
}

func optInt(obj *jason.Object, fallback int, key string) int {
	f, err := obj.GetFloat64(key)
	if err != nil {
		return fallback
	}
	return int(f)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
