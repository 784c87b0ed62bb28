package cfg

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// LoadDotEnv exports KEY=VALUE pairs from an optional .env file into the
// process environment. Variables already set win, so the file only supplies
// defaults. A missing file is not an error. Returns the keys it set.
func LoadDotEnv(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, xerrors.Wrapf(err, "read %s", path)
	}

	var set []string
	// viper lower-cases keys; env names are upper case by convention
	for _, k := range v.AllKeys() {
		key := strings.ToUpper(k)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, v.GetString(k)); err != nil {
			return set, xerrors.Wrapf(err, "set %s", key)
		}
		set = append(set, key)
	}
	return set, nil
}
