package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for frame validation
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"facegate-go/config"
	"facegate-go/internal/core/face"
	"facegate-go/internal/core/models"
	"facegate-go/internal/integrations/mqtt"
	"facegate-go/internal/integrations/recognizer"
	"facegate-go/internal/storage"
	"facegate-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const minRequiredFrames = 5

// APIHandler serves the enrollment and verification API.
type APIHandler struct {
	db         *gorm.DB // may be nil; audit records are then skipped
	cfg        *config.Config
	recognizer recognizer.Service
	store      *storage.EnrollmentStore
	publisher  *mqtt.Publisher // may be nil
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(db *gorm.DB, cfg *config.Config, rec recognizer.Service, store *storage.EnrollmentStore, publisher *mqtt.Publisher) *APIHandler {
	return &APIHandler{
		db:         db,
		cfg:        cfg,
		recognizer: rec,
		store:      store,
		publisher:  publisher,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/enroll", h.Enroll)
	router.POST("/verify", h.Verify)
	router.GET("/status", h.GetStatus)
	router.DELETE("/enrollment", h.DeleteEnrollment)

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
}

// frameData is a single enrollment frame with its pose label.
type frameData struct {
	Pose  string `json:"pose" binding:"required"`
	Image string `json:"image" binding:"required"`
}

type enrollmentRequest struct {
	Frames []frameData `json:"frames" binding:"required"`
}

type verificationRequest struct {
	Image string `json:"image" binding:"required"`
}

// successResponse is the standard success envelope.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    gin.H  `json:"data,omitempty"`
}

func detail(c *gin.Context, status int, format string, args ...interface{}) {
	c.JSON(status, gin.H{"detail": fmt.Sprintf(format, args...)})
}

// processedFrame is the outcome of running one image through the recognizer.
type processedFrame struct {
	Embedding []float32
	Meta      models.FrameMetadata
}

// Enroll accepts a batch of pose-labelled frames, extracts one embedding per
// valid frame and persists the result as the single active enrollment.
func (h *APIHandler) Enroll(c *gin.Context) {
	var req enrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid enrollment request: %v", err)
		return
	}

	if len(req.Frames) < minRequiredFrames {
		detail(c, http.StatusBadRequest, "Insufficient frames: %d provided, minimum %d required",
			len(req.Frames), minRequiredFrames)
		return
	}

	ctx := c.Request.Context()

	var (
		embeddings [][]float32
		metadata   []models.FrameMetadata
		errorList  []string
	)

	for idx, frame := range req.Frames {
		if !models.IsValidPose(models.Pose(frame.Pose)) {
			errorList = append(errorList, fmt.Sprintf("Frame %d (%s): unknown pose label", idx+1, frame.Pose))
			continue
		}
		processed, err := h.processFrame(ctx, frame.Image, frame.Pose)
		if err != nil {
			errorList = append(errorList, fmt.Sprintf("Frame %d (%s): %v", idx+1, frame.Pose, err))
			continue
		}
		embeddings = append(embeddings, processed.Embedding)
		metadata = append(metadata, processed.Meta)
	}

	if len(embeddings) < minRequiredFrames {
		msg := fmt.Sprintf("Insufficient valid embeddings: %d valid out of %d frames",
			len(embeddings), len(req.Frames))
		if len(errorList) > 0 {
			shown := errorList
			if len(shown) > 5 {
				shown = shown[:5]
			}
			msg += ". Errors: " + strings.Join(shown, "; ")
		}
		detail(c, http.StatusBadRequest, "%s", msg)
		return
	}

	if err := h.store.SaveEnrollment(embeddings, metadata); err != nil {
		detail(c, http.StatusInternalServerError, "Failed to save enrollment: %v", err)
		return
	}

	h.recordEnrollment(len(embeddings), len(req.Frames), metadata)

	data := gin.H{
		"embeddings_count": len(embeddings),
		"metadata":         metadata,
	}
	if len(errorList) > 0 {
		data["errors"] = errorList
	}

	c.JSON(http.StatusOK, successResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully enrolled %d face embeddings", len(embeddings)),
		Data:    data,
	})
}

// Verify compares a probe image against the enrolled embeddings.
func (h *APIHandler) Verify(c *gin.Context) {
	if !h.store.IsEnrolled() {
		detail(c, http.StatusBadRequest, "No enrollment found. Please enroll a face first.")
		return
	}

	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid verification request: %v", err)
		return
	}

	threshold := h.cfg.Verify.SimilarityThreshold

	processed, err := h.processFrame(c.Request.Context(), req.Image, "verification")
	if err != nil {
		// A frame the recognizer cannot use is a negative result, not an
		// HTTP error; the kiosk keeps polling.
		h.respondVerification(c, false, 0.0, threshold,
			fmt.Sprintf("Face processing failed: %v", err))
		return
	}

	stored, err := h.store.LoadEmbeddings()
	if err != nil || stored == nil {
		detail(c, http.StatusInternalServerError, "Failed to load stored embeddings")
		return
	}

	best := face.BestSimilarity(processed.Embedding, stored)
	verified := best >= threshold

	var message string
	if verified {
		message = fmt.Sprintf("Face verified with similarity: %.4f", best)
	} else {
		message = fmt.Sprintf("Face not verified. Best similarity: %.4f (threshold: %g)", best, threshold)
	}

	h.respondVerification(c, verified, best, threshold, message)
}

func (h *APIHandler) respondVerification(c *gin.Context, verified bool, similarity, threshold float64, message string) {
	h.recordVerification(verified, similarity, threshold, message)

	if h.publisher != nil {
		h.publisher.PublishVerification(mqtt.VerificationEvent{
			Verified:   verified,
			Similarity: similarity,
			Threshold:  threshold,
			Timestamp:  time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, successResponse{
		Success: true,
		Message: message,
		Data: gin.H{
			"verified":   verified,
			"similarity": similarity,
			"threshold":  threshold,
		},
	})
}

// GetStatus reports whether an enrollment exists and how many embeddings it
// holds.
func (h *APIHandler) GetStatus(c *gin.Context) {
	enrolled := h.store.IsEnrolled()

	data := gin.H{"enrolled": enrolled}

	if enrolled {
		if embeddings, err := h.store.LoadEmbeddings(); err == nil && embeddings != nil {
			data["embeddings_count"] = len(embeddings)
		}
		if meta, err := h.store.LoadMetadata(); err == nil && meta != nil {
			data["metadata"] = gin.H{
				"version":   meta.Version,
				"timestamp": meta.Timestamp,
				"count":     meta.Count,
			}
		}
	}

	c.JSON(http.StatusOK, successResponse{
		Success: true,
		Message: "Status retrieved successfully",
		Data:    data,
	})
}

// DeleteEnrollment clears the stored enrollment.
func (h *APIHandler) DeleteEnrollment(c *gin.Context) {
	if !h.store.IsEnrolled() {
		detail(c, http.StatusNotFound, "No enrollment found to delete")
		return
	}

	if err := h.store.Clear(); err != nil {
		detail(c, http.StatusInternalServerError, "Failed to clear enrollment: %v", err)
		return
	}

	c.JSON(http.StatusOK, successResponse{
		Success: true,
		Message: "Enrollment data cleared successfully",
	})
}

// Root returns the service banner with the endpoint map.
func (h *APIHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "FaceGate API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"enroll": "POST /enroll",
			"verify": "POST /verify",
			"status": "GET /status",
			"delete": "DELETE /enrollment",
		},
	})
}

// Health is a cheap liveness probe; it never touches the recognizer.
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "FaceGate",
		"version": "1.0.0",
		"system":  utils.CollectSystemStats(),
	})
}

// processFrame decodes a data-URI image, validates it and asks the
// recognizer for exactly one face embedding.
func (h *APIHandler) processFrame(ctx context.Context, payload, pose string) (*processedFrame, error) {
	imageData, err := decodeImagePayload(payload)
	if err != nil {
		return nil, err
	}

	cfgDims, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image")
	}

	minSize := h.cfg.Verify.MinImageSize
	if cfgDims.Width < minSize || cfgDims.Height < minSize {
		return nil, fmt.Errorf("image too small: %dx%d. Minimum %dx%d required",
			cfgDims.Width, cfgDims.Height, minSize, minSize)
	}

	resp, err := h.recognizer.Represent(ctx, imageData, pose+".jpg")
	if err != nil {
		return nil, fmt.Errorf("recognizer processing failed: %v", err)
	}

	if len(resp.Faces) == 0 {
		return nil, fmt.Errorf("no face detected in image")
	}
	if len(resp.Faces) > 1 {
		return nil, fmt.Errorf("multiple faces detected (%d). Exactly 1 face required", len(resp.Faces))
	}

	detected := resp.Faces[0]
	if want := h.cfg.Recognizer.EmbeddingSize; want > 0 && len(detected.Embedding) != want {
		return nil, fmt.Errorf("unexpected embedding size %d (want %d)", len(detected.Embedding), want)
	}

	imageArea := cfgDims.Width * cfgDims.Height
	faceArea := (detected.Box[2] - detected.Box[0]) * (detected.Box[3] - detected.Box[1])
	faceRatio := 0.0
	if imageArea > 0 {
		faceRatio = float64(faceArea) / float64(imageArea)
	}

	if faceRatio < h.cfg.Verify.MinFaceRatio {
		return nil, fmt.Errorf("face too small (ratio: %.4f). Minimum %g required",
			faceRatio, h.cfg.Verify.MinFaceRatio)
	}

	return &processedFrame{
		Embedding: detected.Embedding,
		Meta: models.FrameMetadata{
			Pose:       pose,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Confidence: faceRatio,
			FaceRatio:  faceRatio,
		},
	}, nil
}

// decodeImagePayload accepts a raw base64 string or a full data URI.
func decodeImagePayload(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data")
	}
	return data, nil
}

func (h *APIHandler) recordEnrollment(embeddingsCount, frameCount int, metadata []models.FrameMetadata) {
	if h.db == nil {
		return
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		log.Warnf("Failed to marshal enrollment metadata: %v", err)
		metaJSON = nil
	}

	record := models.EnrollmentRecord{
		EmbeddingsCount: embeddingsCount,
		FrameCount:      frameCount,
		Metadata:        datatypes.JSON(metaJSON),
	}
	if err := h.db.Create(&record).Error; err != nil {
		log.Warnf("Failed to record enrollment: %v", err)
	}
}

func (h *APIHandler) recordVerification(verified bool, similarity, threshold float64, message string) {
	if h.db == nil {
		return
	}

	logEntry := models.VerificationLog{
		Verified:   verified,
		Similarity: similarity,
		Threshold:  threshold,
		Message:    message,
	}
	if err := h.db.Create(&logEntry).Error; err != nil {
		log.Warnf("Failed to record verification: %v", err)
	}
}
