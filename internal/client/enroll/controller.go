package enroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facegate-go/internal/client/api"
	"facegate-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// State is the single tagged state of the enrollment flow. Using one value
// instead of independent boolean flags rules out invalid combinations.
type State int

const (
	StateIntro State = iota
	StateCapturing
	StateReviewing
	StateSubmitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIntro:
		return "intro"
	case StateCapturing:
		return "capturing"
	case StateReviewing:
		return "reviewing"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongState is returned when an operation is not valid in the
	// current state.
	ErrWrongState = errors.New("operation not valid in current state")
)

// FrameCapturer captures the current camera frame as a data URI.
type FrameCapturer interface {
	CaptureDataURI() (string, error)
}

// Submitter posts the completed frame batch to the backend.
type Submitter interface {
	Enroll(ctx context.Context, frames []api.Frame) (*api.EnrollResult, error)
}

// Controller sequences the five enrollment poses, collects one frame per
// pose and submits the batch.
type Controller struct {
	capturer FrameCapturer
	client   Submitter

	// Countdown is the delay between the capture trigger and the actual
	// capture. Tests set it to zero.
	Countdown time.Duration
	// OnCountdown, when set, is called once per remaining second.
	OnCountdown func(remaining int)

	sleep func(time.Duration)

	state     State
	poseIndex int
	frames    []api.Frame
	failure   string
}

// NewController creates a controller in the Intro state.
func NewController(capturer FrameCapturer, client Submitter) *Controller {
	return &Controller{
		capturer:  capturer,
		client:    client,
		Countdown: 3 * time.Second,
		sleep:     time.Sleep,
		state:     StateIntro,
	}
}

// State returns the current flow state.
func (c *Controller) State() State {
	return c.state
}

// CurrentPose returns the pose to capture next. Only meaningful while
// capturing.
func (c *Controller) CurrentPose() models.Pose {
	if c.poseIndex >= len(models.RequiredPoses) {
		return models.RequiredPoses[len(models.RequiredPoses)-1]
	}
	return models.RequiredPoses[c.poseIndex]
}

// PoseIndex returns the zero-based index of the pose to capture next.
func (c *Controller) PoseIndex() int {
	return c.poseIndex
}

// Frames returns a copy of the captured frames.
func (c *Controller) Frames() []api.Frame {
	out := make([]api.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// FailureReason returns the last recorded failure message.
func (c *Controller) FailureReason() string {
	return c.failure
}

// Begin moves from Intro to Capturing at the first pose.
func (c *Controller) Begin() error {
	if c.state != StateIntro {
		return fmt.Errorf("%w: begin from %s", ErrWrongState, c.state)
	}
	c.state = StateCapturing
	c.poseIndex = 0
	c.frames = nil
	return nil
}

// CaptureNext runs the countdown and captures the current pose. On success
// the pose index advances; after the final pose the state becomes
// Reviewing. A capture failure keeps the pose index where it is so the user
// can re-trigger.
func (c *Controller) CaptureNext(ctx context.Context) error {
	if c.state != StateCapturing {
		return fmt.Errorf("%w: capture from %s", ErrWrongState, c.state)
	}

	if err := c.runCountdown(ctx); err != nil {
		return err
	}

	pose := c.CurrentPose()
	uri, err := c.capturer.CaptureDataURI()
	if err != nil {
		log.Warnf("Capture failed for pose %s: %v", pose, err)
		return fmt.Errorf("capture failed for pose %s: %w", pose, err)
	}

	c.frames = append(c.frames, api.Frame{Pose: string(pose), Image: uri})
	c.poseIndex++

	if c.poseIndex >= len(models.RequiredPoses) {
		c.state = StateReviewing
	}
	return nil
}

func (c *Controller) runCountdown(ctx context.Context) error {
	remaining := int(c.Countdown / time.Second)
	for ; remaining > 0; remaining-- {
		if c.OnCountdown != nil {
			c.OnCountdown(remaining)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(time.Second)
	}
	return nil
}

// RetakeAll discards every captured frame and restarts at the first pose.
func (c *Controller) RetakeAll() error {
	if c.state != StateReviewing && c.state != StateCapturing {
		return fmt.Errorf("%w: retake from %s", ErrWrongState, c.state)
	}
	c.frames = nil
	c.poseIndex = 0
	c.state = StateCapturing
	return nil
}

// Submit posts the batch. Valid only from Reviewing with a complete set of
// frames. Timeouts and logical failures return the flow to Reviewing so the
// user can retry or retake.
func (c *Controller) Submit(ctx context.Context) (*api.EnrollResult, error) {
	if c.state != StateReviewing {
		return nil, fmt.Errorf("%w: submit from %s", ErrWrongState, c.state)
	}
	if len(c.frames) < len(models.RequiredPoses) {
		return nil, fmt.Errorf("%w: only %d of %d frames captured",
			ErrWrongState, len(c.frames), len(models.RequiredPoses))
	}

	c.state = StateSubmitting

	result, err := c.client.Enroll(ctx, c.frames)
	if err != nil {
		c.state = StateReviewing
		if errors.Is(err, api.ErrSubmitTimeout) {
			c.failure = "submission timed out; the server may still be downloading models, try again"
			return nil, err
		}
		c.failure = err.Error()
		return nil, err
	}

	if !result.Success {
		// Logical failure: recoverable, server message surfaced verbatim.
		c.state = StateReviewing
		c.failure = result.Message
		return result, fmt.Errorf("enrollment rejected: %s", result.Message)
	}

	c.state = StateDone
	c.failure = ""
	return result, nil
}
