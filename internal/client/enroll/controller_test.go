package enroll

import (
	"context"
	"errors"
	"testing"
	"time"

	"facegate-go/internal/client/api"
	"facegate-go/internal/core/models"
)

type stubCapturer struct {
	uri      string
	err      error
	captures int
}

func (s *stubCapturer) CaptureDataURI() (string, error) {
	s.captures++
	if s.err != nil {
		return "", s.err
	}
	return s.uri, nil
}

type stubSubmitter struct {
	result *api.EnrollResult
	err    error
	calls  int
	block  chan struct{}
}

func (s *stubSubmitter) Enroll(ctx context.Context, frames []api.Frame) (*api.EnrollResult, error) {
	s.calls++
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, api.ErrSubmitTimeout
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestController(capturer *stubCapturer, submitter *stubSubmitter) *Controller {
	c := NewController(capturer, submitter)
	c.Countdown = 0
	return c
}

func captureAll(t *testing.T, c *Controller) {
	t.Helper()
	for i := 0; i < len(models.RequiredPoses); i++ {
		if err := c.CaptureNext(context.Background()); err != nil {
			t.Fatalf("CaptureNext %d: %v", i, err)
		}
	}
}

func TestPoseSequenceAdvancesInOrder(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	c := newTestController(capturer, &stubSubmitter{})

	if err := c.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	for i, want := range models.RequiredPoses {
		if got := c.CurrentPose(); got != want {
			t.Fatalf("pose %d: got %s, want %s", i, got, want)
		}
		if err := c.CaptureNext(context.Background()); err != nil {
			t.Fatalf("CaptureNext %d: %v", i, err)
		}
	}

	if c.State() != StateReviewing {
		t.Errorf("expected reviewing after final pose, got %s", c.State())
	}
	frames := c.Frames()
	if len(frames) != len(models.RequiredPoses) {
		t.Fatalf("expected %d frames, got %d", len(models.RequiredPoses), len(frames))
	}
	for i, f := range frames {
		if f.Pose != string(models.RequiredPoses[i]) {
			t.Errorf("frame %d pose: got %s, want %s", i, f.Pose, models.RequiredPoses[i])
		}
	}
}

func TestSubmitRequiresAllFrames(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	submitter := &stubSubmitter{}
	c := newTestController(capturer, submitter)

	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState before capture, got %v", err)
	}

	c.Begin()
	for i := 0; i < 3; i++ {
		c.CaptureNext(context.Background())
	}
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState with partial frames, got %v", err)
	}
	if submitter.calls != 0 {
		t.Errorf("submitter should not have been called, got %d calls", submitter.calls)
	}
}

func TestRetakeResetsToFirstPose(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	c := newTestController(capturer, &stubSubmitter{})

	c.Begin()
	captureAll(t, c)

	if err := c.RetakeAll(); err != nil {
		t.Fatalf("RetakeAll: %v", err)
	}
	if c.State() != StateCapturing {
		t.Errorf("expected capturing after retake, got %s", c.State())
	}
	if len(c.Frames()) != 0 {
		t.Errorf("expected no frames after retake, got %d", len(c.Frames()))
	}
	if c.CurrentPose() != models.PoseFront {
		t.Errorf("expected first pose after retake, got %s", c.CurrentPose())
	}
}

func TestSubmitSuccessCompletesOnce(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	submitter := &stubSubmitter{result: &api.EnrollResult{Success: true, Message: "ok", EmbeddingsCount: 5}}
	c := newTestController(capturer, submitter)

	c.Begin()
	captureAll(t, c)

	result, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.Success {
		t.Error("expected successful result")
	}
	if c.State() != StateDone {
		t.Errorf("expected done, got %s", c.State())
	}
	if submitter.calls != 1 {
		t.Errorf("expected 1 submit call, got %d", submitter.calls)
	}

	// Completed flows do not accept another submission.
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrWrongState) {
		t.Errorf("expected ErrWrongState after completion, got %v", err)
	}
}

func TestSubmitTimeoutIsDistinctAndRecoverable(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	submitter := &stubSubmitter{block: make(chan struct{})}
	c := newTestController(capturer, submitter)

	c.Begin()
	captureAll(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Submit(ctx)
	if !errors.Is(err, api.ErrSubmitTimeout) {
		t.Fatalf("expected ErrSubmitTimeout, got %v", err)
	}
	if c.State() != StateReviewing {
		t.Errorf("expected reviewing after timeout, got %s", c.State())
	}
	if c.FailureReason() == "" {
		t.Error("expected a failure reason after timeout")
	}

	// Frames are intact so the user can retry without recapturing.
	if len(c.Frames()) != len(models.RequiredPoses) {
		t.Errorf("frames lost after timeout: %d", len(c.Frames()))
	}
}

func TestSubmitLogicalFailureIsRecoverable(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	submitter := &stubSubmitter{result: &api.EnrollResult{Success: false, Message: "no face detected in frame 2"}}
	c := newTestController(capturer, submitter)

	c.Begin()
	captureAll(t, c)

	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected error for rejected enrollment")
	}
	if c.State() != StateReviewing {
		t.Errorf("expected reviewing after rejection, got %s", c.State())
	}
	if c.FailureReason() != "no face detected in frame 2" {
		t.Errorf("unexpected failure reason: %q", c.FailureReason())
	}

	// Retake and resubmit with a now-successful backend.
	submitter.result = &api.EnrollResult{Success: true, Message: "ok"}
	if err := c.RetakeAll(); err != nil {
		t.Fatalf("RetakeAll: %v", err)
	}
	captureAll(t, c)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if c.State() != StateDone {
		t.Errorf("expected done after resubmit, got %s", c.State())
	}
}

func TestCaptureFailureDoesNotAdvance(t *testing.T) {
	capturer := &stubCapturer{err: errors.New("camera not ready")}
	c := newTestController(capturer, &stubSubmitter{})

	c.Begin()
	if err := c.CaptureNext(context.Background()); err == nil {
		t.Fatal("expected capture error")
	}
	if c.PoseIndex() != 0 {
		t.Errorf("pose index advanced on failure: %d", c.PoseIndex())
	}
	if len(c.Frames()) != 0 {
		t.Errorf("frame recorded on failure: %d", len(c.Frames()))
	}

	// Recovered camera resumes at the same pose.
	capturer.err = nil
	capturer.uri = "data:image/jpeg;base64,Zg=="
	if err := c.CaptureNext(context.Background()); err != nil {
		t.Fatalf("CaptureNext after recovery: %v", err)
	}
	if c.PoseIndex() != 1 {
		t.Errorf("expected pose index 1, got %d", c.PoseIndex())
	}
}

func TestCountdownTicks(t *testing.T) {
	capturer := &stubCapturer{uri: "data:image/jpeg;base64,Zg=="}
	c := newTestController(capturer, &stubSubmitter{})
	c.Countdown = 3 * time.Second
	c.sleep = func(time.Duration) {}

	var ticks []int
	c.OnCountdown = func(remaining int) { ticks = append(ticks, remaining) }

	c.Begin()
	if err := c.CaptureNext(context.Background()); err != nil {
		t.Fatalf("CaptureNext: %v", err)
	}
	if len(ticks) != 3 || ticks[0] != 3 || ticks[2] != 1 {
		t.Errorf("unexpected countdown ticks: %v", ticks)
	}
}
