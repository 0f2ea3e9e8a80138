package entitlement

import (
	"github.com/voyatra/hybridpay/internal/entitlement/store"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.store",
	fx.Provide(store.New),
)
