package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/2beens/fitassess/internal/exercise"

	log "github.com/sirupsen/logrus"
)

const (
	repWeight    = 0.6
	formWeight   = 0.4
	cheatPenalty = 30

	noDataLabel = "No Data"
)

const (
	recNoData        = "No analysis data available"
	recForm          = "Focus on maintaining proper form throughout each repetition"
	recFormExcellent = "Excellent form, keep the same technique in your next session"
	recReps          = "Work on building endurance to increase your repetition count"
	recHands         = "Keep your arms crossed over your chest, do not push off with your hands"
	recFeet          = "Keep your feet flat on the ground throughout the movement"
	recCheat         = "Cheating was detected. Please retry the test following the instructions"
	recGeneric       = "Keep training consistently to improve your results"
)

// Summary is the display model of an analysed test.
type Summary struct {
	ExerciseName    string   `json:"exerciseName"`
	Exercise        string   `json:"exercise,omitempty"`
	OverallScore    int      `json:"overallScore"`
	RepetitionCount int      `json:"repetitionCount"`
	FormQuality     string   `json:"formQuality"`
	DurationLabel   string   `json:"duration"`
	AverageAngle    float64  `json:"averageAngle"`
	FormAccuracy    float64  `json:"formAccuracy"`
	Recommendations []string `json:"recommendations"`
	CheatDetected   bool     `json:"cheatDetected"`
	CheatReasons    []string `json:"cheatReasons,omitempty"`
	TotalFrames     int      `json:"totalFrames"`
	Shape           Shape    `json:"shape"`
}

// Normalize turns a raw analysis response into a Summary. A non nil repOverride
// wins over the payload's counter.
func Normalize(raw json.RawMessage, repOverride *int) Summary {
	return NormalizeFor(raw, "", repOverride)
}

// NormalizeFor is Normalize with a fallback exercise, used when the payload
// does not name its exercise type.
func NormalizeFor(raw json.RawMessage, fallback exercise.Type, repOverride *int) Summary {
	payload, err := Detect(raw)
	if err != nil {
		if !errors.Is(err, ErrNoPayload) {
			log.Warnf("normalize: %s", err)
		}
		return noDataSummary(fallback)
	}
	return NormalizePayload(payload, fallback, repOverride)
}

func NormalizePayload(payload Payload, fallback exercise.Type, repOverride *int) Summary {
	var (
		tag          string
		reps         int
		totalFrames  int
		frames       []Frame
		cheat        bool
		cheatReasons []string
	)

	switch payload.Shape() {
	case ShapeCurrent:
		p := payload.Current
		tag, reps, totalFrames, frames = p.ExerciseType, p.FinalCounter, p.TotalFrames, p.Frames
		cheat, cheatReasons = p.CheatDetected, p.CheatReasons
	case ShapeLegacy:
		p := payload.Legacy
		tag, reps, totalFrames, frames = p.ExerciseType, p.FinalCounter, p.TotalFrames, p.Frames
	default:
		return noDataSummary(fallback)
	}

	if tag == "" {
		tag = fallback.APITag()
	}
	if repOverride != nil {
		reps = *repOverride
	}

	expected := exercise.ExpectedReps(tag)
	repScore := clamp(float64(reps)/float64(expected)*100, 0, 100)
	formAccuracy, averageAngle := formStats(frames)

	overall := int(math.Round(repScore*repWeight + formAccuracy*formWeight))
	if cheat {
		overall -= cheatPenalty
	}
	overall = int(clamp(float64(overall), 0, 100))

	exType, _ := exercise.FromAPITag(tag)
	return Summary{
		ExerciseName:    exType.DisplayName(),
		Exercise:        tag,
		OverallScore:    overall,
		RepetitionCount: reps,
		FormQuality:     FormQualityLabel(formAccuracy),
		DurationLabel:   durationLabel(frames, totalFrames),
		AverageAngle:    round1(averageAngle),
		FormAccuracy:    round1(formAccuracy),
		Recommendations: recommendations(formAccuracy, repScore, cheat, cheatReasons),
		CheatDetected:   cheat,
		CheatReasons:    cheatReasons,
		TotalFrames:     totalFrames,
		Shape:           payload.Shape(),
	}
}

func FormQualityLabel(formAccuracy float64) string {
	switch {
	case formAccuracy >= 85:
		return "Excellent"
	case formAccuracy >= 70:
		return "Good"
	case formAccuracy >= 50:
		return "Fair"
	default:
		return "Needs Improvement"
	}
}

func noDataSummary(fallback exercise.Type) Summary {
	return Summary{
		ExerciseName:    fallback.DisplayName(),
		Exercise:        fallback.APITag(),
		FormQuality:     noDataLabel,
		DurationLabel:   "N/A",
		Recommendations: []string{recNoData},
		Shape:           ShapeNone,
	}
}

// formStats returns the percentage of correct-form frames and the mean joint angle,
// both over frames with landmarks detected.
func formStats(frames []Frame) (formAccuracy, averageAngle float64) {
	var withLandmarks, correct int
	var angleSum float64
	for _, f := range frames {
		if !f.LandmarksDetected {
			continue
		}
		withLandmarks++
		angleSum += f.JointAngle
		if f.FormCorrect {
			correct++
		}
	}
	if withLandmarks == 0 {
		return 0, 0
	}
	return float64(correct) / float64(withLandmarks) * 100, angleSum / float64(withLandmarks)
}

func durationLabel(frames []Frame, totalFrames int) string {
	seconds := 0.0
	if len(frames) > 0 {
		seconds = frames[len(frames)-1].Timestamp
	}
	if fromTotal := float64(totalFrames) / implicitFrameRate; fromTotal > seconds {
		seconds = fromTotal
	}
	if seconds <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d seconds", int(math.Round(seconds)))
}

func recommendations(formAccuracy, repScore float64, cheat bool, cheatReasons []string) []string {
	var recs []string

	if cheat {
		var matched bool
		for _, reason := range cheatReasons {
			if strings.Contains(reason, "Hand") && !contains(recs, recHands) {
				recs = append(recs, recHands)
				matched = true
			}
			if strings.Contains(reason, "feet") && !contains(recs, recFeet) {
				recs = append(recs, recFeet)
				matched = true
			}
		}
		if !matched {
			recs = append(recs, recCheat)
		}
	}

	switch {
	case formAccuracy < 70:
		recs = append(recs, recForm)
	case formAccuracy >= 85:
		recs = append(recs, recFormExcellent)
	}

	if repScore < 70 {
		recs = append(recs, recReps)
	}

	if len(recs) == 0 {
		recs = append(recs, recGeneric)
	}
	return recs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
