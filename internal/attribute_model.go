package internal

import (
	"sort"

	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

// AttributeFactory builds an empty attribute of one model.
type AttributeFactory func() eavcache.Attribute

// AttributeModelRegistry maps attribute model identifiers to factories. It is built once at
// startup and read-only afterwards.
type AttributeModelRegistry struct {
	defaultModel string
	factories    map[string]AttributeFactory
}

// NewAttributeModelRegistry validates the factories and the default model eagerly so that
// misconfiguration surfaces at startup rather than during a lookup.
func NewAttributeModelRegistry(defaultModel string, factories map[string]AttributeFactory) (*AttributeModelRegistry, error) {
	registry := &AttributeModelRegistry{
		defaultModel: defaultModel,
		factories:    make(map[string]AttributeFactory, len(factories)+1),
	}

	for name, factory := range factories {
		if name == "" {
			return nil, eavcache.NewConfigurationError("models", "attribute model identifier must not be empty")
		}
		if factory == nil {
			return nil, eavcache.NewConfigurationError("models", "attribute model '"+name+"' has no factory")
		}
		registry.factories[name] = factory
	}

	if defaultModel == "" {
		return nil, eavcache.NewConfigurationError("models.default", "is required")
	}
	if _, ok := registry.factories[defaultModel]; !ok {
		// The default model falls back to the plain base attribute.
		if defaultModel != eavcache.DefaultAttributeModel {
			return nil, eavcache.NewUnknownModelError(defaultModel)
		}
		registry.factories[defaultModel] = BaseAttributeFactory(defaultModel)
	}

	return registry, nil
}

// DefaultAttributeModelRegistry only knows the base attribute model.
func DefaultAttributeModelRegistry() *AttributeModelRegistry {
	registry, _ := NewAttributeModelRegistry(eavcache.DefaultAttributeModel, nil)
	return registry
}

// BaseAttributeFactory returns a factory producing *eavcache.BaseAttribute for model.
func BaseAttributeFactory(model string) AttributeFactory {
	return func() eavcache.Attribute {
		return eavcache.NewBaseAttribute(model)
	}
}

// DefaultModel returns the fallback model identifier.
func (r *AttributeModelRegistry) DefaultModel() string {
	return r.defaultModel
}

// Has reports whether a model is registered.
func (r *AttributeModelRegistry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Validate checks that every named model is registered.
func (r *AttributeModelRegistry) Validate(names ...string) error {
	for _, name := range names {
		if !r.Has(name) {
			return eavcache.NewUnknownModelError(name)
		}
	}
	return nil
}

// Models lists registered identifiers in sorted order.
func (r *AttributeModelRegistry) Models() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates a registered model.
func (r *AttributeModelRegistry) New(name string) (eavcache.Attribute, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, eavcache.NewUnknownModelError(name)
	}
	return factory(), nil
}

// NewOrDefault instantiates name, falling back to the default model when it is unknown.
func (r *AttributeModelRegistry) NewOrDefault(name string) eavcache.Attribute {
	if factory, ok := r.factories[name]; ok {
		return factory()
	}
	zap.S().Warnw("attribute model not registered; using default", "model", name, "default", r.defaultModel)
	return r.factories[r.defaultModel]()
}
