package config

import (
	"gopkg.in/dealancer/validate.v2"
)

// Values carries the pipeline tuning knobs. The GPU batch and budget
// numbers are deliberately configuration rather than constants; they
// affect throughput and headroom, not correctness.
type Values struct {
	Debug bool `json:"debug"`

	// ChannelCapacity bounds the extraction channel; a full channel is
	// the pipeline's single backpressure point.
	ChannelCapacity int `json:"channel_capacity" validate:"gte=1"`

	// BatchSize is the GPU batch flush target.
	BatchSize int `json:"batch_size" validate:"gte=1"`

	// GPUMemoryBudgetMiB caps any single device buffer allocation.
	GPUMemoryBudgetMiB int `json:"gpu_memory_budget_mib" validate:"gte=1"`

	// GPUSafetyFactor leaves headroom in the budget for the input plane
	// and parameter buffers alongside the RGBA output.
	GPUSafetyFactor float64 `json:"gpu_safety_factor" validate:"gt=0.0 & lte=1.0"`

	// PoolSlots is the extraction buffer ring size.
	PoolSlots int `json:"pool_slots" validate:"gte=1"`

	// MaxBatchWaitMillis bounds how long a buffered frame may wait for
	// its batch to fill. Zero disables the deadline flush.
	MaxBatchWaitMillis int `json:"max_batch_wait_millis" validate:"gte=0"`
}

func (v Values) RunValidate() error {
	return validate.Validate(&v)
}

// Defaults mirror the tuning the pipeline was measured with.
func Defaults() Values {
	return Values{
		ChannelCapacity:    100,
		BatchSize:          64,
		GPUMemoryBudgetMiB: 128,
		GPUSafetyFactor:    0.9,
		PoolSlots:          16,
		MaxBatchWaitMillis: 0,
	}
}
