package repository

import (
	"github.com/pkg/errors"
)

// InitPersistent builds and initializes the adapter for the configured
// persistent policy. The instance is handed to the composition root and
// injected where needed, never reached through a global.
func InitPersistent(policy string, psConfig map[string]map[string]interface{}) (PersistentMgr, error) {
	ps := GetPersistentByName(policy)
	if ps == nil {
		return nil, errors.Errorf("persistent policy %s is not regist", policy)
	}

	var pcfg interface{}
	if psConfig != nil {
		if configMap, ok := psConfig[policy]; ok {
			pcfg = ps.UnmarshalConfig(configMap)
		}
	}
	if err := ps.Init(pcfg); err != nil {
		return nil, err
	}
	return ps, nil
}
