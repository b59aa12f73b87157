package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func init() {
	registerForAutomigration(&ConversionRun{})
}

// ConversionRun is one benchmarked pass of a converter mode over an
// input video.
type ConversionRun struct {
	gorm.Model
	UUID            string
	Mode            string
	InputPath       string
	FramesProcessed int
	FramesFailed    int
	AvgMillis       float64
	MinMillis       float64
	MaxMillis       float64
	FPS             float64
}

func (r *ConversionRun) BeforeCreate(tx *gorm.DB) error {
	r.UUID = uuid.NewString()
	return nil
}
