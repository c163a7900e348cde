package discovery

// Observer consumes instance changes. Both methods run on the watcher's
// delivery goroutine and must return quickly: a blocked observer stalls
// every later event.
type Observer interface {
	// OnPut reports that key now maps to value.
	OnPut(key, value string)
	// OnDelete reports that key was removed; value is its last value.
	OnDelete(key, value string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Put    func(key, value string)
	Delete func(key, value string)
}

func (f ObserverFuncs) OnPut(key, value string) {
	if f.Put != nil {
		f.Put(key, value)
	}
}

func (f ObserverFuncs) OnDelete(key, value string) {
	if f.Delete != nil {
		f.Delete(key, value)
	}
}
