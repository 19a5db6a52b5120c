package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pose is one of the fixed head orientations requested during enrollment.
type Pose string

const (
	PoseFront Pose = "front"
	PoseLeft  Pose = "left"
	PoseRight Pose = "right"
	PoseUp    Pose = "up"
	PoseDown  Pose = "down"
)

// RequiredPoses is the fixed capture order for an enrollment attempt.
var RequiredPoses = []Pose{PoseFront, PoseLeft, PoseRight, PoseUp, PoseDown}

// IsValidPose reports whether p is one of the five required poses.
func IsValidPose(p Pose) bool {
	for _, rp := range RequiredPoses {
		if p == rp {
			return true
		}
	}
	return false
}

// FrameMetadata describes a single accepted enrollment frame.
type FrameMetadata struct {
	Pose       string  `json:"pose"`
	Timestamp  string  `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	FaceRatio  float64 `json:"face_ratio"`
}

// EnrollmentRecord is the audit trail entry for a completed enrollment.
type EnrollmentRecord struct {
	gorm.Model
	EmbeddingsCount int            `gorm:"not null"`       // number of embeddings persisted
	FrameCount      int            `gorm:"not null"`       // number of frames submitted
	Metadata        datatypes.JSON `gorm:"type:json;null"` // per-frame metadata as stored on disk
}

// VerificationLog is the audit trail entry for a single verification attempt.
type VerificationLog struct {
	gorm.Model
	Verified   bool    `gorm:"index"`
	Similarity float64 // best cosine similarity against the enrolled set
	Threshold  float64
	Message    string
}
