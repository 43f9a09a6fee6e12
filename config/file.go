package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads settings from path. Fields absent from the file keep their
// default values; unknown keys are logged and ignored.
func Load(path string) (Settings, error) {
	s := Default()
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slogger().Warn("config: ignoring unknown keys",
			"path", path,
			"keys", strings.Join(keys, ", "))
	}
	s.Normalize()
	return s, nil
}

// Save writes s to path, replacing the file atomically.
func Save(path string, s Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	return nil
}

// LoadOrCreate loads path, writing the defaults there first when the file
// does not exist. created reports whether the file was written.
func LoadOrCreate(path string) (s Settings, created bool, err error) {
	s, err = Load(path)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, false, err
	}

	s = Default()
	if err := Save(path, s); err != nil {
		return Settings{}, false, err
	}
	slogger().Info("config: wrote default settings", "path", path)
	return s, true, nil
}
