// Package service runs the configured barstreams components.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/config"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/health"
	"github.com/c360/barstreams/metric"
	"github.com/c360/barstreams/types"
)

// startRank orders component types so sinks are up before the sources that
// feed them. Stop runs in reverse.
var startRank = map[string]int{
	string(types.ComponentTypeStorage):   0,
	string(types.ComponentTypeOutput):    1,
	string(types.ComponentTypeProcessor): 2,
	string(types.ComponentTypeInput):     3,
}

// ComponentManager handles lifecycle management of all configured
// components.
//
//	Initialize() - create enabled components without starting them
//	Start(ctx)   - start them, each under a child context
//	Stop()       - cancel the contexts and stop in reverse start order
type ComponentManager struct {
	registry *component.Registry
	configs  config.ComponentConfigs
	deps     component.Dependencies
	logger   *slog.Logger
	metrics  *metric.Metrics
	monitor  *health.Monitor

	mu          sync.RWMutex
	components  map[string]*component.ManagedComponent
	startOrder  []string
	initialized bool
	started     bool
}

// NewComponentManager creates a manager over the registry's factories.
func NewComponentManager(
	registry *component.Registry, configs config.ComponentConfigs, deps component.Dependencies,
) (*ComponentManager, error) {
	if registry == nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: registry", errors.ErrMissingConfig),
			"ComponentManager", "NewComponentManager", "registry check")
	}

	cm := &ComponentManager{
		registry:   registry,
		configs:    configs,
		deps:       deps,
		logger:     deps.GetLoggerWithComponent("component-manager"),
		monitor:    health.NewMonitor(),
		components: make(map[string]*component.ManagedComponent),
	}
	if deps.MetricsRegistry != nil {
		cm.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return cm, nil
}

// Initialize creates every enabled component and calls its Initialize.
// Creation errors are joined and returned after every config was tried.
func (cm *ComponentManager) Initialize() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.initialized {
		return nil
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(cm.configs)) {
		cfg := cm.configs[name]
		if !cfg.Enabled {
			cm.logger.Debug("Skipping disabled component", "instance", name)
			continue
		}

		if err := cm.createLocked(name, cfg); err != nil {
			cm.logger.Error("Failed to create component",
				"instance", name, "factory", cfg.Name, "type", cfg.Type, "error", err)
			errs = append(errs, fmt.Errorf("component %s: %w", name, err))
			continue
		}
		cm.logger.Info("Component created", "instance", name, "factory", cfg.Name, "type", cfg.Type)
	}

	cm.initialized = true
	return stderrors.Join(errs...)
}

func (cm *ComponentManager) createLocked(name string, cfg types.ComponentConfig) error {
	comp, err := cm.registry.CreateComponent(name, cfg, cm.deps)
	if err != nil {
		return err
	}

	mc := &component.ManagedComponent{Component: comp, State: component.StateCreated}
	if lc, ok := component.AsLifecycleComponent(comp); ok {
		if err := lc.Initialize(); err != nil {
			cm.registry.UnregisterInstance(name)
			return errors.Wrap(err, "ComponentManager", "Initialize", "component initialize")
		}
	}
	mc.State = component.StateInitialized
	cm.components[name] = mc
	cm.recordState(name, mc.State)
	return nil
}

// Start starts every initialized component in storage, output, processor,
// input order. A component that fails to start is marked failed; the others
// keep running and the failures are returned joined.
func (cm *ComponentManager) Start(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.initialized {
		return errors.WrapFatal(errors.ErrNotStarted, "ComponentManager", "Start", "initialized check")
	}
	if cm.started {
		return nil
	}

	names := slices.Collect(maps.Keys(cm.components))
	slices.SortFunc(names, func(a, b string) int {
		ra := startRank[cm.components[a].Component.Meta().Type]
		rb := startRank[cm.components[b].Component.Meta().Type]
		if ra != rb {
			return ra - rb
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	cm.startOrder = cm.startOrder[:0]
	var errs []error
	for _, name := range names {
		mc := cm.components[name]
		lc, ok := component.AsLifecycleComponent(mc.Component)
		if !ok {
			mc.State = component.StateStarted
			continue
		}

		mc.Context, mc.Cancel = context.WithCancel(ctx)
		mc.StartOrder = len(cm.startOrder)
		cm.startOrder = append(cm.startOrder, name)

		cm.logger.Info("Starting component", "name", name, "type", mc.Component.Meta().Type)
		if err := lc.Start(mc.Context); err != nil {
			mc.State = component.StateFailed
			mc.LastError = err
			cm.recordState(name, mc.State)
			cm.logger.Error("Component failed to start", "name", name, "error", err)
			errs = append(errs, fmt.Errorf("component %s: %w", name, err))
			continue
		}
		mc.State = component.StateStarted
		cm.recordState(name, mc.State)
	}

	cm.started = true
	return stderrors.Join(errs...)
}

// Stop cancels every component context, then stops components in reverse
// start order, giving each the time left of timeout.
func (cm *ComponentManager) Stop(timeout time.Duration) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.started {
		return nil
	}

	deadline := time.Now().Add(timeout)
	var errs []error

	for i := len(cm.startOrder) - 1; i >= 0; i-- {
		name := cm.startOrder[i]
		mc := cm.components[name]

		if mc.State == component.StateStarted {
			if lc, ok := component.AsLifecycleComponent(mc.Component); ok {
				remaining := max(time.Until(deadline), 0)
				if err := lc.Stop(remaining); err != nil {
					mc.State = component.StateFailed
					mc.LastError = err
					cm.recordState(name, mc.State)
					errs = append(errs, fmt.Errorf("component %s: %w", name, err))
					cm.cancel(mc)
					continue
				}
			}
		}

		cm.cancel(mc)
		if mc.State != component.StateFailed {
			mc.State = component.StateStopped
		}
		cm.recordState(name, mc.State)
		cm.logger.Info("Component stopped", "name", name)
	}

	cm.started = false
	return stderrors.Join(errs...)
}

func (cm *ComponentManager) cancel(mc *component.ManagedComponent) {
	if mc.Cancel != nil {
		mc.Cancel()
		mc.Cancel = nil
		mc.Context = nil
	}
}

func (cm *ComponentManager) recordState(name string, state component.State) {
	if cm.metrics != nil {
		cm.metrics.RecordComponentStatus(name, int(state))
	}
}

// Component retrieves a specific component instance by name
func (cm *ComponentManager) Component(name string) component.Discoverable {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if mc, ok := cm.components[name]; ok {
		return mc.Component
	}
	return nil
}

// States returns each component's lifecycle state.
func (cm *ComponentManager) States() map[string]component.State {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make(map[string]component.State, len(cm.components))
	for name, mc := range cm.components {
		out[name] = mc.State
	}
	return out
}

// Health folds every component's report into one status. A component that
// failed its lifecycle is unhealthy regardless of what it reports.
func (cm *ComponentManager) Health() health.Status {
	cm.mu.RLock()
	for name, mc := range cm.components {
		var status health.Status
		switch mc.State {
		case component.StateFailed:
			msg := "lifecycle failure"
			if mc.LastError != nil {
				msg = mc.LastError.Error()
			}
			status = health.FromComponentHealth(name, component.HealthStatus{LastError: msg})
		case component.StateStarted:
			status = health.FromComponentHealth(name, mc.Component.Health())
		default:
			status = health.NewDegraded(name, "Component "+mc.State.String())
		}
		cm.monitor.Update(name, status)
	}
	cm.mu.RUnlock()

	return cm.monitor.AggregateHealth("barstreams")
}

// HealthFunc adapts Health to the metric server's /health endpoint, which
// lists only components that are not healthy.
func (cm *ComponentManager) HealthFunc() metric.HealthFunc {
	return func() map[string]string {
		agg := cm.Health()
		if agg.IsHealthy() {
			return nil
		}
		out := make(map[string]string)
		for _, sub := range agg.SubStatuses {
			if !sub.IsHealthy() {
				out[sub.Component] = sub.Status + ": " + sub.Message
			}
		}
		return out
	}
}
