package trashdb

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// LoadOptions reads Options from a TOML file. Sizes accept datasize
// notation, for example:
//
//	path = "/var/lib/trashdb"
//	engine = "bolt"
//	map_size = "64MB"
//	max_readers = 256
//
// Fields missing from the file keep their zero value and are defaulted by
// Open.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrap(err, "read config")
	}
	var opts Options
	if err := toml.Unmarshal(data, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "parse config %s", path)
	}
	switch opts.Engine {
	case "", EngineMDBX, EngineBolt:
	default:
		return Options{}, errors.Errorf("config %s: unknown engine %q", path, opts.Engine)
	}
	return opts, nil
}
