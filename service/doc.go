// Package service runs the components named in the configuration.
//
// ComponentManager creates each enabled component through the component
// registry, starts storage, outputs, processors and then inputs so every
// subscriber exists before its publishers, and stops them in reverse. Each
// component runs under a child context of the one passed to Start.
//
//	registry := component.NewRegistry()
//	if err := componentregistry.Register(registry); err != nil {
//		return err
//	}
//	cm, err := service.NewComponentManager(registry, cfg.Components, deps)
//	if err != nil {
//		return err
//	}
//	if err := cm.Initialize(); err != nil {
//		logger.Warn("some components were not created", "error", err)
//	}
//	if err := cm.Start(ctx); err != nil {
//		logger.Warn("some components failed to start", "error", err)
//	}
//	defer cm.Stop(10 * time.Second)
//
// Health aggregates component reports for the /health endpoint.
package service
