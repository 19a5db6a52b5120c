package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"facegate-go/config"
	"facegate-go/internal/client/api"
	"facegate-go/internal/client/camera"
	"facegate-go/internal/client/enroll"
	"facegate-go/internal/client/verify"
	"facegate-go/internal/core/models"
	"facegate-go/internal/i18n"
	"facegate-go/internal/logger"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	tr, err := i18n.NewTranslator(cfg.Kiosk.Language)
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	baseURL := cfg.Kiosk.APIURL
	if baseURL == "" {
		baseURL = api.BaseURLFromEnv()
	}
	client := api.NewClient(baseURL, cfg.Kiosk.SubmitTimeout())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := camera.NewSession(camera.NewWebcamSource(), cfg.Kiosk.Camera)
	if err := session.Start(); err != nil {
		log.Fatalf("Failed to start camera: %v", err)
	}
	defer session.Stop()

	status, err := client.Status(ctx)
	if err != nil {
		log.Fatalf("Backend at %s not reachable: %v", baseURL, err)
	}

	stdin := bufio.NewScanner(os.Stdin)

	if !status.Enrolled {
		if !runEnrollment(ctx, cfg, tr, client, session, stdin) {
			return
		}
		// The verification flow owns the camera from here; hand it over
		// with the enrollment stream fully released.
		session.Stop()
	} else {
		log.Infof("Already enrolled with %d face samples", status.EmbeddingsCount)
	}

	runVerification(ctx, cfg, tr, client, session)
	fmt.Println(tr.T("shutdown"))
}

// runEnrollment drives the pose flow to completion. It returns false when
// the user aborted via signal.
func runEnrollment(ctx context.Context, cfg *config.Config, tr *i18n.Translator, client *api.Client, session *camera.Session, stdin *bufio.Scanner) bool {
	controller := enroll.NewController(session, client)
	controller.Countdown = cfg.Kiosk.Countdown()
	controller.OnCountdown = func(remaining int) {
		fmt.Println(tr.Tf("capture.countdown", map[string]interface{}{"Seconds": remaining}))
	}

	fmt.Println(tr.T("intro.title"))
	fmt.Println(tr.T("intro.body"))
	if !waitEnter(ctx, stdin) {
		return false
	}
	if err := controller.Begin(); err != nil {
		log.Fatalf("Failed to start enrollment: %v", err)
	}

	for controller.State() != enroll.StateDone {
		switch controller.State() {
		case enroll.StateCapturing:
			pose := controller.CurrentPose()
			fmt.Println(tr.Tf("capture.trigger", map[string]interface{}{
				"Index":       controller.PoseIndex() + 1,
				"Total":       len(models.RequiredPoses),
				"Instruction": tr.T("pose." + string(pose)),
			}))
			if !waitEnter(ctx, stdin) {
				return false
			}
			if err := controller.CaptureNext(ctx); err != nil {
				if ctx.Err() != nil {
					return false
				}
				fmt.Println(tr.Tf("capture.failed", map[string]interface{}{"Reason": err.Error()}))
				continue
			}
			fmt.Println(tr.T("capture.done"))

		case enroll.StateReviewing:
			fmt.Println(tr.T("review.title"))
			fmt.Println(tr.T("review.prompt"))
			choice, ok := readLine(ctx, stdin)
			if !ok {
				return false
			}
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(choice)), "r") {
				if err := controller.RetakeAll(); err != nil {
					log.Errorf("Retake failed: %v", err)
				}
				continue
			}

			fmt.Println(tr.T("submit.sending"))
			result, err := controller.Submit(ctx)
			switch {
			case err == nil:
				fmt.Println(tr.Tf("submit.success", map[string]interface{}{"Count": result.EmbeddingsCount}))
			case errors.Is(err, api.ErrSubmitTimeout):
				fmt.Println(tr.T("submit.timeout"))
			case ctx.Err() != nil:
				return false
			default:
				fmt.Println(tr.Tf("submit.rejected", map[string]interface{}{"Reason": controller.FailureReason()}))
			}
		}
	}
	return true
}

// runVerification polls the backend with live frames until the context is
// cancelled.
func runVerification(ctx context.Context, cfg *config.Config, tr *i18n.Translator, client *api.Client, session *camera.Session) {
	fmt.Println(tr.T("verify.starting"))

	if err := session.Start(); err != nil {
		log.Fatalf("Failed to start camera for verification: %v", err)
	}

	poller := verify.NewPoller(session, client, cfg.Kiosk.PollInterval())
	poller.OnResult = func(r *api.VerifyResult) {
		key := "verify.nomatch"
		if r.Verified {
			key = "verify.match"
		}
		fmt.Println(tr.Tf(key, map[string]interface{}{
			"Similarity": fmt.Sprintf("%.4f", r.Similarity),
		}))
	}

	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
}

// waitEnter blocks until the user presses Enter or the context ends.
func waitEnter(ctx context.Context, stdin *bufio.Scanner) bool {
	_, ok := readLine(ctx, stdin)
	return ok
}

// readLine reads one line from stdin, abandoning the wait when the context
// is cancelled.
func readLine(ctx context.Context, stdin *bufio.Scanner) (string, bool) {
	lines := make(chan string, 1)
	go func() {
		if stdin.Scan() {
			lines <- stdin.Text()
		} else {
			close(lines)
		}
	}()

	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return line, ok
	}
}
