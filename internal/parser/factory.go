package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"finextract/internal/config"
	"finextract/internal/port"
)

// ProviderFactory builds a LanguageModel for one configured provider.
type ProviderFactory func(cfg *config.ModelProviderConfig) (port.LanguageModel, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProvider makes a provider available to NewModel under name.
// Registering the same name again replaces the earlier factory.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// RegisteredProviders lists the registered provider names in sorted order.
func RegisteredProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewModel builds the model for cfg.Provider.
func NewModel(cfg *config.ModelProviderConfig) (port.LanguageModel, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(cfg.Provider)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q (registered: %s)", cfg.Provider, strings.Join(RegisteredProviders(), ", "))
	}
	m, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s model: %w", cfg.Provider, err)
	}
	return m, nil
}

// NewModelChain builds every configured provider and wraps them in a
// FallbackModel. A single provider is returned unwrapped.
func NewModelChain(cfg *config.ModelConfig) (port.LanguageModel, error) {
	var (
		models []port.LanguageModel
		names  []string
	)
	for _, pc := range cfg.Providers() {
		m, err := NewModel(pc)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
		names = append(names, pc.Provider)
	}
	switch len(models) {
	case 0:
		return nil, fmt.Errorf("no model provider configured")
	case 1:
		return models[0], nil
	}
	return NewFallbackModel(models, names), nil
}
