package rerun

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
)

// StateFile is the name of the state file inside the build directory.
const StateFile = "spicegen_state.json"

// State records the last successful run.
type State struct {
	Fingerprint string `json:"fingerprint"`
	BuildID     string `json:"build_id"`
	Archive     string `json:"archive"`
	Artifact    string `json:"artifact,omitempty"`
	Sources     int    `json:"sources"`
}

// LoadState reads the state saved in dir. No state yet is not an error;
// the result is nil.
func LoadState(dir string) (*State, error) {
	f, err := os.Open(filepath.Join(dir, StateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var s State
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *State) Save(dir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StateFile), data, 0o644)
}

// UpToDate reports whether s was produced from inputs with the given
// fingerprint and its outputs are still on disk.
func (s *State) UpToDate(fingerprint string) bool {
	if s == nil || s.Fingerprint != fingerprint {
		return false
	}
	for _, out := range []string{s.Archive, s.Artifact} {
		if out == "" {
			continue
		}
		if _, err := os.Stat(out); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes the state in dir so the next run starts over.
func Remove(dir string) error {
	err := os.Remove(filepath.Join(dir, StateFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
