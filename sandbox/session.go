package sandbox

import (
	"path/filepath"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/archive"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/hashicorp/go-hclog"
)

const sessionFile = "session.json"

// SessionPath is where the environment of a home directory persists
func SessionPath(home string, compressed bool) string {
	path := filepath.Join(home, sessionFile)
	if compressed {
		path += archive.CompressedExt
	}

	return path
}

// FindSession returns the existing session file of home, preferring the
// compressed one
func FindSession(home string) (string, bool) {
	for _, compressed := range []bool{true, false} {
		if path := SessionPath(home, compressed); common.FileExists(path) {
			return path, true
		}
	}

	return "", false
}

// SaveSession writes a snapshot of env to path
func SaveSession(logger hclog.Logger, path string, env *Env) error {
	return archive.WriteJSON(logger, path, env.Snapshot(), archive.OptionsFor(path, true))
}

// LoadSession restores the environment saved in home. A home without a
// session yields a fresh environment with cfg.
func LoadSession(logger hclog.Logger, home string, cfg Config) (*Env, error) {
	path, ok := FindSession(home)
	if !ok {
		return New(logger, cfg)
	}

	var ps PersistentState
	if err := archive.ReadJSON(logger, path, &ps); err != nil {
		return nil, err
	}

	return Restored(logger, &ps)
}
