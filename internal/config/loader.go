package config

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Load reads tomlPath over the built-in defaults, the same two-layer
// koanf pattern the teacher's configs.NewConfigFromTomlFile uses: defaults
// via structs.Provider first, then the file, then an UnmarshalWithConf
// pass so zero-valued struct fields in the file don't clobber defaults.
func Load(tomlPath string) (*EngineConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(NewDefaultConfig(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load default engine config")
	}

	if err := k.Load(file.Provider(tomlPath), toml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load engine config file %s", tomlPath)
		}
	}

	cfg := &EngineConfig{}
	unmarshalConf := koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result: cfg,
		},
	}
	if err := k.UnmarshalWithConf("", cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, "unmarshal engine config")
	}

	cfg.Clamp()
	return cfg, nil
}
