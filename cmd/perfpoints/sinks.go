package main

import (
	"github.com/kylerisse/perfpoints/pkg/sink"
	"github.com/kylerisse/perfpoints/pkg/sink/clickhouse"
	"github.com/kylerisse/perfpoints/pkg/sink/file"
	"github.com/kylerisse/perfpoints/pkg/sink/influx"
	"github.com/sirupsen/logrus"
)

// newSinkRegistry returns a Registry with all built-in sink types.
func newSinkRegistry(logger logrus.FieldLogger) *sink.Registry {
	r := sink.NewRegistry()
	for name, factory := range map[string]sink.Factory{
		influx.TypeName:     influx.NewFactory(logger),
		clickhouse.TypeName: clickhouse.NewFactory(logger),
		file.TypeName:       file.NewFactory(logger),
	} {
		// Names are distinct constants, so Register cannot fail here.
		_ = r.Register(name, factory)
	}
	return r
}
