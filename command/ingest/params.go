package ingest

import (
	"errors"
)

const (
	fromFlag = "from"
	toFlag   = "to"
)

var errNoCheckpoints = errors.New("the selected source serves no checkpoints, set SUI_WALRUS_CHECKPOINT_DIR")

var (
	params = &ingestParams{}
)

type ingestParams struct {
	from    uint64
	to      uint64
	source  string
	workers int
}

func (p *ingestParams) validateFlags() error {
	if p.to < p.from {
		return errors.New("--to must not be below --from")
	}

	return nil
}

func (p *ingestParams) getRequiredFlags() []string {
	return []string{
		fromFlag,
		toFlag,
	}
}
