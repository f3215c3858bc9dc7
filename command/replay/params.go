package replay

import (
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const (
	stateJSONFlag            = "state-json"
	dynamicFieldPrefetchFlag = "dynamic-field-prefetch"
	predictivePrefetchFlag   = "predictive-prefetch"
	versionPatchFlag         = "version-patch"
	prefetchDepthFlag        = "prefetch-depth"
	prefetchLimitFlag        = "prefetch-limit"
	maxAttemptsFlag          = "max-attempts"
	seriesFlag               = "series"
)

var (
	errNoTarget       = errors.New("a transaction digest, --state-json or --series is required")
	errTooManyTargets = errors.New("--series replays its own digests and takes no digest argument")
	errReplayFailed   = errors.New("replay failed")
)

var (
	params = &replayParams{}
)

type replayParams struct {
	stateJSON     string
	source        string
	allowFallback bool
	series        string
	workers       int

	dynamicFieldPrefetch bool
	predictivePrefetch   bool
	versionPatch         bool
	prefetchDepth        int
	prefetchLimit        int
	maxAttempts          int

	digestRaw string
	digest    *types.Digest
}

func (p *replayParams) validateFlags(args []string) error {
	if len(args) > 0 {
		p.digestRaw = args[0]
	}

	if p.series != "" {
		if p.digestRaw != "" {
			return errTooManyTargets
		}

		return nil
	}

	if p.digestRaw == "" {
		if p.stateJSON == "" {
			return errNoTarget
		}

		return nil
	}

	digest, err := types.ParseDigest(p.digestRaw)
	if err != nil {
		return err
	}

	p.digest = &digest

	return nil
}
