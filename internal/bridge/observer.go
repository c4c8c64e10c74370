package bridge

import "fmt"

// Observer receives every property change the dispatcher fans out.
//
// Observers run on the dispatch loop and must not block. Anything slower
// than a channel send belongs on the observer's own goroutine.
type Observer interface {
	PropertyChanged(resourceID, property, value string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(resourceID, property, value string)

// PropertyChanged calls f.
func (f ObserverFunc) PropertyChanged(resourceID, property, value string) {
	f(resourceID, property, value)
}

// AddObserver registers o for every subsequent fan-out.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observersMu.Lock()
	d.observers = append(d.observers, o)
	d.observersMu.Unlock()
}

// notifyObservers calls every observer, recovering panics so one faulty
// observer cannot take the dispatch loop down.
func (d *Dispatcher) notifyObservers(resourceID, property, value string) {
	d.observersMu.RLock()
	observers := d.observers
	d.observersMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logError("observer panic recovered", fmt.Errorf("panic: %v", r))
				}
			}()
			o.PropertyChanged(resourceID, property, value)
		}()
	}
}
