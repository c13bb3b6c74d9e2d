package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrProviderNotConnected is returned when operations are attempted on a disconnected provider
	ErrProviderNotConnected = errors.New("provider is not connected")
	// ErrProviderAlreadyConnected is returned when attempting to connect an already connected provider
	ErrProviderAlreadyConnected = errors.New("provider is already connected")
	// ErrInvalidSymbol is returned when an invalid stock code is provided
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrUnknownProvider is returned by the factory for unregistered provider types
	ErrUnknownProvider = errors.New("unknown provider type")
)

// TickHandler receives raw tick records keyed by provider field names
// (ltt, open, high, low, last, close, ltq, ...).
type TickHandler func(tick map[string]interface{})

// Provider defines the interface for market data providers. Each collector
// owns one provider instance.
type Provider interface {
	// Connect establishes a connection to the market data provider
	Connect(ctx context.Context) error

	// Subscribe starts delivering ticks for stockCode to handler. The handler
	// is invoked from the provider's goroutine.
	Subscribe(ctx context.Context, stockCode string, handler TickHandler) error

	// Close closes the connection to the provider
	Close() error

	// IsConnected returns whether the provider is currently connected
	IsConnected() bool

	// GetName returns the name/type of the provider
	GetName() string
}

// ProviderConfig holds configuration for a provider
type ProviderConfig struct {
	APIKey           string
	AccessToken      string
	WSURL            string
	Exchange         string
	InstrumentTokens map[string]uint32
	TickInterval     time.Duration
}

// ProviderFactory creates provider instances
type ProviderFactory interface {
	// CreateProvider creates a new provider instance based on the provider type
	CreateProvider(providerType string, config ProviderConfig) (Provider, error)

	// RegisterProvider registers a custom provider factory function
	RegisterProvider(providerType string, factoryFunc func(ProviderConfig) (Provider, error)) error

	// ListProviders returns a list of available provider types
	ListProviders() []string
}

// DefaultProviderFactory is the default implementation of ProviderFactory
type DefaultProviderFactory struct {
	factories map[string]func(ProviderConfig) (Provider, error)
}

// NewProviderFactory creates a factory with the built-in providers registered
func NewProviderFactory() *DefaultProviderFactory {
	factory := &DefaultProviderFactory{
		factories: make(map[string]func(ProviderConfig) (Provider, error)),
	}

	factory.RegisterProvider("mock", NewMockProvider)
	factory.RegisterProvider("websocket", NewWebSocketProvider)
	factory.RegisterProvider("kite", NewKiteProvider)

	return factory
}

// CreateProvider creates a new provider instance
func (f *DefaultProviderFactory) CreateProvider(providerType string, config ProviderConfig) (Provider, error) {
	factoryFunc, exists := f.factories[providerType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerType)
	}

	return factoryFunc(config)
}

// RegisterProvider registers a custom provider factory function
func (f *DefaultProviderFactory) RegisterProvider(providerType string, factoryFunc func(ProviderConfig) (Provider, error)) error {
	if _, exists := f.factories[providerType]; exists {
		return errors.New("provider type already registered: " + providerType)
	}
	f.factories[providerType] = factoryFunc
	return nil
}

// ListProviders returns the registered provider types, sorted
func (f *DefaultProviderFactory) ListProviders() []string {
	providers := make([]string, 0, len(f.factories))
	for providerType := range f.factories {
		providers = append(providers, providerType)
	}
	sort.Strings(providers)
	return providers
}
