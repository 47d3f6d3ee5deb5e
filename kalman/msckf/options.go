package msckf

import (
	vio "github.com/milosgajdos/go-vio"
	"go.uber.org/zap"
)

// Option configures MSCKF
type Option func(*MSCKF)

// WithLogger sets MSCKF logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(k *MSCKF) {
		if l != nil {
			k.log = l
		}
	}
}

// WithGate sets the outlier gate every feature measurement must pass.
// It overrides the gate created from Config.GateConfidence.
func WithGate(g vio.Gate) Option {
	return func(k *MSCKF) {
		k.gate = g
	}
}
