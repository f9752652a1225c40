//go:build wireinject

package app

import (
	"net/http"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/Aeell/HomeEyeView/internal/data"
	"github.com/Aeell/HomeEyeView/internal/web/api"
	"github.com/google/wire"
)

func wireApp(bc *conf.Bootstrap) (http.Handler, func(), error) {
	panic(wire.Build(data.ProviderSet, api.ProviderSet))
}
