package securemem

import (
	"sort"
	"sync"
)

// Keyring maps provider names to their credentials.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*String
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]*String)}
}

// Set stores a key, destroying any previous value. Empty values are ignored.
func (k *Keyring) Set(provider, value string) {
	if value == "" {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if old, ok := k.keys[provider]; ok {
		old.Destroy()
	}
	k.keys[provider] = NewString(value)
}

// Reveal returns the plaintext key for provider, or "" when absent.
func (k *Keyring) Reveal(provider string) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[provider].Reveal()
}

func (k *Keyring) Has(provider string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.keys[provider]
	return ok && !s.IsEmpty()
}

// Providers lists configured providers in sorted order.
func (k *Keyring) Providers() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.keys))
	for name, s := range k.keys {
		if !s.IsEmpty() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Destroy wipes every stored key.
func (k *Keyring) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for name, s := range k.keys {
		s.Destroy()
		delete(k.keys, name)
	}
}
