package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/subsnap/subsnap/pkg/log"
)

const (
	vendorName     = "subsnap"
	appName        = "subsnap"
	configFileName = "config.json"
)

var fs afero.Fs = afero.NewOsFs()

var userConfigDir = os.UserConfigDir

// Load resolves and reads the config file, falling back to Defaults when
// no file exists. A present-but-invalid file is an error; silently
// running with defaults after a failed parse would hide misconfiguration.
func Load() (Values, error) {
	values := Defaults()

	configPath, err := resolveConfigPath()
	if err != nil {
		return Values{}, err
	}

	file, err := readConfigFile(configPath)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			log.Debug("no config file at %s, using defaults", configPath)
			return values, nil
		}
		return Values{}, err
	}

	log.Info("Resolved config file location: %s", configPath)
	if err := unmarshal(file, &values); err != nil {
		return Values{}, err
	}

	if err := values.RunValidate(); err != nil {
		return Values{}, err
	}

	return values, nil
}

var readConfigFile = func(path string) ([]byte, error) {
	return afero.ReadFile(fs, path)
}

func unmarshal(content []byte, values *Values) error {
	if err := json.Unmarshal(content, values); err != nil {
		return errors.Errorf("parsing configuration error: %v", err)
	}
	return nil
}

func resolveConfigPath() (string, error) {
	configPath := os.Getenv("SUBSNAP_CONFIG")
	if len(configPath) > 0 {
		return configPath, nil
	}

	configParentDir, err := userConfigDir()
	if err != nil {
		return "", errors.Errorf("unable to resolve %s location: %v", configFileName, err)
	}

	return filepath.Join(
		configParentDir,
		vendorName,
		appName,
		configFileName), nil
}
