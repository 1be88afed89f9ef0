package intercept

import "sync/atomic"

// KeySignal holds the modifier key currently pressed on the monitored page.
// The page is the only writer.
type KeySignal struct {
	key atomic.Pointer[string]
}

func (k *KeySignal) Set(key string) {
	if key == "" {
		k.key.Store(nil)
		return
	}
	k.key.Store(&key)
}

func (k *KeySignal) Load() string {
	if p := k.key.Load(); p != nil {
		return *p
	}
	return ""
}

// ConsumeAndClear returns the current key and resets it, so a single held
// key overrides a single download.
func (k *KeySignal) ConsumeAndClear() string {
	if p := k.key.Swap(nil); p != nil {
		return *p
	}
	return ""
}
