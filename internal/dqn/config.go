package dqn

import (
	"errors"
	"math"
)

// Config holds the learner's hyperparameters.
type Config struct {
	// Warmup is the number of steps collected before the first update.
	Warmup int `yaml:"warmup"`
	// TargetUpdate is the step interval between hard target network syncs.
	TargetUpdate int `yaml:"target_update"`
	// MemoryLimit bounds the replay memory.
	MemoryLimit int `yaml:"memory_limit"`
	// AnnealSteps is how long epsilon decays from EpsMax to EpsMin.
	AnnealSteps int     `yaml:"anneal_steps"`
	EpsMax      float64 `yaml:"eps_max"`
	EpsMin      float64 `yaml:"eps_min"`
	EpsTest     float64 `yaml:"eps_test"`
	Gamma       float64 `yaml:"gamma"`
	// TrainInterval is the number of steps between updates.
	TrainInterval int `yaml:"train_interval"`
	// DeltaClip bounds the TD error (Huber loss).
	DeltaClip    float64 `yaml:"delta_clip"`
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
	// CheckpointInterval is the step interval of periodic weight
	// snapshots. Zero disables them.
	CheckpointInterval int `yaml:"checkpoint_interval"`
	// MaxEpisodeSteps caps test episodes. Zero means no cap.
	MaxEpisodeSteps int   `yaml:"max_episode_steps"`
	Seed            int64 `yaml:"seed"`
}

// DefaultConfig derives the schedule from the planned number of training
// steps.
func DefaultConfig(steps int) Config {
	root := math.Sqrt(float64(steps))
	return Config{
		Warmup:             int(root*42) + 1000,
		TargetUpdate:       int(root*8) + 8,
		MemoryLimit:        steps,
		AnnealSteps:        steps / 2,
		EpsMax:             1,
		EpsMin:             .1,
		EpsTest:            .05,
		Gamma:              .99,
		TrainInterval:      4,
		DeltaClip:          1,
		LearningRate:       1e-3,
		BatchSize:          32,
		CheckpointInterval: 250000,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MemoryLimit <= 0:
		return errors.New("memory limit must be > 0")
	case c.TargetUpdate <= 0:
		return errors.New("target update must be > 0")
	case c.TrainInterval <= 0:
		return errors.New("train interval must be > 0")
	case c.BatchSize <= 0:
		return errors.New("batch size must be > 0")
	case c.LearningRate <= 0:
		return errors.New("learning rate must be > 0")
	case c.Gamma < 0 || c.Gamma > 1:
		return errors.New("gamma must be in [0, 1]")
	case c.EpsMin > c.EpsMax:
		return errors.New("eps min must not exceed eps max")
	}
	return nil
}
