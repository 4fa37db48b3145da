package capture

import "time"

const (
	CountdownFrom = 3

	// FrameOffset is where the face frame is taken from the face recording.
	FrameOffset = 2 * time.Second
)

// State can be one of:
//   - idle
//   - permission_pending
//   - ready
//   - countdown
//   - recording
//   - processing
//   - done
//   - error
type State string

const (
	StateIdle              State = "idle"
	StatePermissionPending State = "permission_pending"
	StateReady             State = "ready"
	StateCountdown         State = "countdown"
	StateRecording         State = "recording"
	StateProcessing        State = "processing"
	StateDone              State = "done"
	StateError             State = "error"
)

func (s State) String() string {
	return string(s)
}

// Mode can be one of:
//   - face: short front camera recording, reduced to a single frame
//   - video: exercise recording with audio
type Mode string

const (
	ModeFace  Mode = "face"
	ModeVideo Mode = "video"
)

func (m Mode) String() string {
	return string(m)
}

func (m Mode) IsValid() bool {
	return m == ModeFace || m == ModeVideo
}

// Status is a point in time view of a controller.
type Status struct {
	Mode      Mode   `json:"mode"`
	State     State  `json:"state"`
	Countdown int    `json:"countdown,omitempty"`
	Elapsed   int    `json:"elapsed"`
	Duration  int    `json:"duration"`
	Error     string `json:"error,omitempty"`
}

// Outcome is a finished capture. MediaPath is empty when no usable media was produced.
type Outcome struct {
	Mode      Mode          `json:"mode"`
	MediaPath string        `json:"mediaPath,omitempty"`
	VideoPath string        `json:"videoPath,omitempty"`
	Recorded  time.Duration `json:"recorded"`
	Error     string        `json:"error,omitempty"`
}

func (o Outcome) HasMedia() bool {
	return o.MediaPath != ""
}
