package flow

import "fmt"

// SubmitPolicy can be one of:
//   - auto: the recorded or uploaded video is submitted as soon as it is available
//   - manual: the video waits for an explicit submit
//
// The policy is the same for every test type.
type SubmitPolicy string

const (
	SubmitAuto   SubmitPolicy = "auto"
	SubmitManual SubmitPolicy = "manual"
)

func (p SubmitPolicy) String() string {
	return string(p)
}

func (p SubmitPolicy) IsValid() bool {
	return p == SubmitAuto || p == SubmitManual
}

func ParseSubmitPolicy(s string) (SubmitPolicy, error) {
	if s == "" {
		return SubmitAuto, nil
	}
	p := SubmitPolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown submit policy: %s", s)
	}
	return p, nil
}

// Step can be one of:
//   - instructions
//   - face_verification (sit-ups only)
//   - recording
//   - submission
//   - results
type Step string

const (
	StepInstructions     Step = "instructions"
	StepFaceVerification Step = "face_verification"
	StepRecording        Step = "recording"
	StepSubmission       Step = "submission"
	StepResults          Step = "results"
)

func (s Step) String() string {
	return string(s)
}

// CaptureTarget is what a capture is started for.
type CaptureTarget string

const (
	CaptureFace     CaptureTarget = "face"
	CaptureExercise CaptureTarget = "exercise"
)

func (t CaptureTarget) IsValid() bool {
	return t == CaptureFace || t == CaptureExercise
}
