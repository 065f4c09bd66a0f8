package local

import (
	"path"

	"github.com/dualtier/dtman/common"
	"github.com/dualtier/dtman/config"
)

type LocalConfig struct {
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	DataFile string `yaml:"data_file" json:"data_file"`
}

func (cfg *LocalConfig) Normalize() {
	cfg.DataDir = common.GetStringwithDefault(cfg.DataDir, path.Join(config.GetWorkDirectory(), "data"))
	cfg.DataFile = common.GetStringwithDefault(cfg.DataFile, "dtman.json")
}
