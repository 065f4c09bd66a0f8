package mysql

import "github.com/dualtier/dtman/repository"

func init() {
	repository.RegistePersistent(NewFactory)
}

type Factory struct{}

func (factory *Factory) CreatePersistent() repository.PersistentMgr {
	return NewMysqlPersistent()
}

func (factory *Factory) GetPersistentName() string {
	return MysqlPersistentName
}

func NewFactory() repository.PersistentFactory {
	return &Factory{}
}
