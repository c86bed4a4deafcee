// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package config

import (
	"encoding/json"
	"github.com/pkg/errors"
	"io/ioutil"
	"os"
	"strings"
	"time"
)

// Mutate
func (c *config) Modify(newValues ...KernelConfigKeyValue) {
	for _, kv := range newValues {
		c.kv[kv.Key] = kv.Value
	}
}

func modifyFromJson(cfg mutableKernelConfig, source string) error {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(source), &data); err != nil {
		return err
	}

	if err := populateConfig(cfg, data); err != nil {
		return err
	}

	return nil
}

func convertKeyName(key string) string {
	return strings.ToUpper(strings.Replace(key, "-", "_", -1))
}

func populateConfig(cfg mutableKernelConfig, data map[string]interface{}) error {
	for key, value := range data {
		switch value.(type) {
		case bool:
			cfg.SetBool(convertKeyName(key), value.(bool))
		case float64:
			cfg.SetUint32(convertKeyName(key), uint32(value.(float64)))
		case string:
			if duration, decodeError := time.ParseDuration(value.(string)); decodeError != nil {
				cfg.SetString(convertKeyName(key), value.(string))
			} else {
				cfg.SetDuration(convertKeyName(key), duration)
			}
		}
	}

	return nil
}

// For main reading several files into one config

type FilesPaths []string

func (i *FilesPaths) String() string {
	return strings.Join(*i, ",")
}

func (i *FilesPaths) Set(value string) error {
	*i = append(*i, value)
	return nil
}

func GetKernelConfigFromFiles(configFiles FilesPaths, dataDir string) (KernelConfig, error) {
	cfg := ForProduction(dataDir)

	if len(configFiles) != 0 {
		for _, configFile := range configFiles {
			if _, err := os.Stat(configFile); os.IsNotExist(err) {
				return nil, errors.Errorf("could not open config file: %s", err)
			}

			contents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}

			err = modifyFromJson(cfg, string(contents))

			if err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}
