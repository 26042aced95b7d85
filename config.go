//   Copyright 2025 the check_ceph authors
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package main

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration for check_ceph. Every field is
// optional; command line flags take precedence over the file.
type Config struct {
	Ceph struct {
		Exec       string `yaml:"exec"`
		ConfigFile string `yaml:"config_file"`
		MonAddress string `yaml:"mon_address"`
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		Keyring    string `yaml:"keyring"`
	} `yaml:"ceph"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	Thresholds struct {
		DfWarnPercent float64 `yaml:"df_warn_percent"`
		DfCritPercent float64 `yaml:"df_crit_percent"`
		MinQuorum     int     `yaml:"min_quorum"`
	} `yaml:"thresholds"`
}

// fileExists returns true if the path exists and is a file.
func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return !os.IsNotExist(err) && !stat.IsDir()
}

func ParseConfig(p string) (*Config, error) {
	cfgData, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(cfgData, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
