package objgraph

import (
	"log/slog"

	"github.com/drpcorg/objgraph/utils"
)

type Options struct {
	// Name shows up in every log line of the domain.
	Name   string
	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Name == "" {
		o.Name = "root"
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

// SerializeFlags tune a Serialize call.
type SerializeFlags uint8

const (
	// SerializeConsts writes Const objects too, normally their creator
	// stores them once.
	SerializeConsts SerializeFlags = 1 << iota
)
