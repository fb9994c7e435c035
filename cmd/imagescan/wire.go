//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"imagescan/internal/biz"
	"imagescan/internal/conf"
	"imagescan/internal/data"
	"imagescan/internal/gateway"
	"imagescan/internal/server"
	"imagescan/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Gateway, *conf.Scanner, *conf.OCR, *conf.Classifier, *conf.Quota, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(server.ProviderSet, data.ProviderSet, gateway.ProviderSet, biz.ProviderSet, service.ProviderSet, newApp))
}
