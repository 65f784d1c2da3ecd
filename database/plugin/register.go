// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeBlob PluginType = iota + 1
	PluginTypeMetadata
)

const envVarPrefix = "BEQUEST"

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

type PluginOption struct {
	Name         string
	Type         PluginOptionType
	Description  string
	DefaultValue any
	Dest         any
}

// Runtime carries process-wide dependencies into a plugin constructor
type Runtime struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

type PluginEntry struct {
	Type               PluginType
	Name               string
	Description        string
	NewFromOptionsFunc func(Runtime) Plugin
	Options            []PluginOption
}

var (
	pluginEntries   []PluginEntry
	pluginEntriesMu sync.RWMutex
)

// Register adds a plugin to the registry. It is intended to be called from
// a plugin package's init function.
func Register(pluginEntry PluginEntry) {
	pluginEntriesMu.Lock()
	defer pluginEntriesMu.Unlock()
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registry entries of the given type
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMu.RLock()
	defer pluginEntriesMu.RUnlock()
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin builds a new instance of the named plugin, or returns nil if no
// such plugin is registered
func GetPlugin(pluginType PluginType, pluginName string, rt Runtime) Plugin {
	pluginEntriesMu.RLock()
	var newFunc func(Runtime) Plugin
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == pluginName {
			newFunc = p.NewFromOptionsFunc
			break
		}
	}
	pluginEntriesMu.RUnlock()
	if newFunc == nil {
		return nil
	}
	return newFunc(rt)
}

func optionFlagName(p PluginEntry, opt PluginOption) string {
	return fmt.Sprintf("%s-%s-%s", PluginTypeName(p.Type), p.Name, opt.Name)
}

func optionEnvVar(p PluginEntry, opt PluginOption) string {
	return strings.ToUpper(
		strings.ReplaceAll(
			fmt.Sprintf(
				"%s_%s_%s_%s",
				envVarPrefix,
				PluginTypeName(p.Type),
				p.Name,
				opt.Name,
			),
			"-",
			"_",
		),
	)
}

// PopulateCmdlineOptions adds a flag for every plugin option to the flag set,
// named <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMu.RLock()
	defer pluginEntriesMu.RUnlock()
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			flagName := optionFlagName(p, opt)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", flagName)
				}
				defVal, _ := opt.DefaultValue.(string)
				fs.StringVar(dest, flagName, defVal, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", flagName)
				}
				defVal, _ := opt.DefaultValue.(bool)
				fs.BoolVar(dest, flagName, defVal, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", flagName)
				}
				defVal, _ := opt.DefaultValue.(int)
				fs.IntVar(dest, flagName, defVal, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", flagName)
				}
				defVal, _ := opt.DefaultValue.(uint64)
				fs.Uint64Var(dest, flagName, defVal, opt.Description)
			default:
				return fmt.Errorf("unknown plugin option type %d for option %s", opt.Type, flagName)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin options from environment variables named
// BEQUEST_<TYPE>_<PLUGIN>_<OPTION>
func ProcessEnvVars() error {
	pluginEntriesMu.RLock()
	entries := append([]PluginEntry(nil), pluginEntries...)
	pluginEntriesMu.RUnlock()
	for _, p := range entries {
		for _, opt := range p.Options {
			envVar := optionEnvVar(p, opt)
			envVal, ok := os.LookupEnv(envVar)
			if !ok {
				continue
			}
			value, err := parseOptionValue(opt, envVal)
			if err != nil {
				return fmt.Errorf("environment variable %s: %w", envVar, err)
			}
			if err := SetPluginOption(p.Type, p.Name, opt.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options from a config file. The map is keyed
// by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	pluginEntriesMu.RLock()
	entries := append([]PluginEntry(nil), pluginEntries...)
	pluginEntriesMu.RUnlock()
	for _, p := range entries {
		typeConfig, ok := pluginConfig[PluginTypeName(p.Type)]
		if !ok {
			continue
		}
		optionValues, ok := typeConfig[p.Name]
		if !ok {
			continue
		}
		for _, opt := range p.Options {
			rawVal, ok := optionValues[opt.Name]
			if !ok {
				continue
			}
			value, err := coerceOptionValue(opt, rawVal)
			if err != nil {
				return fmt.Errorf(
					"%s plugin '%s' option %s: %w",
					PluginTypeName(p.Type),
					p.Name,
					opt.Name,
					err,
				)
			}
			if err := SetPluginOption(p.Type, p.Name, opt.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseOptionValue(opt PluginOption, val string) (any, error) {
	switch opt.Type {
	case PluginOptionTypeString:
		return val, nil
	case PluginOptionTypeBool:
		return strconv.ParseBool(val)
	case PluginOptionTypeInt:
		return strconv.Atoi(val)
	case PluginOptionTypeUint:
		return strconv.ParseUint(val, 10, 64)
	default:
		return nil, fmt.Errorf("unknown plugin option type %d", opt.Type)
	}
}

// coerceOptionValue converts a decoded YAML value to the type expected by
// the option
func coerceOptionValue(opt PluginOption, val any) (any, error) {
	if strVal, ok := val.(string); ok {
		return parseOptionValue(opt, strVal)
	}
	switch opt.Type {
	case PluginOptionTypeBool:
		if v, ok := val.(bool); ok {
			return v, nil
		}
	case PluginOptionTypeInt:
		if v, ok := val.(int); ok {
			return v, nil
		}
	case PluginOptionTypeUint:
		switch v := val.(type) {
		case int:
			if v < 0 {
				return nil, fmt.Errorf("negative value %d", v)
			}
			return uint64(v), nil
		case uint64:
			return v, nil
		}
	}
	return nil, fmt.Errorf("unexpected value type %T", val)
}
