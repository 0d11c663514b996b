// Package vectorutils is the vector driver utility package
package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/qdrantvec"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	DBPath       string
	Host         string
	Port         int
	Dimensions   uint
	Logger       *zap.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.DBPath,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrantvec.NewQdrantDriver(ctx, qdrantvec.Config{
			Host:       o.Host,
			Port:       o.Port,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
