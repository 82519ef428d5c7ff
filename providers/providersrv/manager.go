package providersrv

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/providers"
	"github.com/Abraxas-365/craftable/logx"
)

// Manager registro de adaptadores de proveedor. El registro se llena al
// arrancar el servidor; después solo se lee, así que el lock es de cortesía
// para quien registre en caliente.
type Manager struct {
	mu          sync.RWMutex
	adapters    map[kernel.ProviderID]providers.ProviderAdapter
	sendTimeout time.Duration
}

var _ providers.Manager = (*Manager)(nil)

func NewManager(sendTimeout time.Duration) *Manager {
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Manager{
		adapters:    make(map[kernel.ProviderID]providers.ProviderAdapter),
		sendTimeout: sendTimeout,
	}
}

// Register añade un adaptador al registro
func (m *Manager) Register(adapter providers.ProviderAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[adapter.ID()] = adapter
	logx.Info("provider adapter registered: %s", adapter.ID())
}

// Get obtiene el adaptador de un proveedor
func (m *Manager) Get(providerID kernel.ProviderID) (providers.ProviderAdapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adapter, ok := m.adapters[providerID]
	if !ok {
		return nil, providers.ErrProviderNotFound().
			WithDetail("provider_id", providerID.String())
	}
	return adapter, nil
}

// SendText envía texto a través del proveedor indicado, con timeout propio
// para que un proveedor lento no cuelgue el procesamiento del mensaje
func (m *Manager) SendText(ctx context.Context, providerID kernel.ProviderID, contactAddress string, text string) error {
	adapter, err := m.Get(providerID)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	return adapter.SendText(sendCtx, contactAddress, text, providers.SendOptions{})
}

// List todos los adaptadores registrados
func (m *Manager) List() []providers.ProviderAdapter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]providers.ProviderAdapter, 0, len(m.adapters))
	for _, adapter := range m.adapters {
		out = append(out, adapter)
	}
	return out
}
