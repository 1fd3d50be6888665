package upload

import "slices"

// Observer receives coordinator notifications. Calls happen outside the
// coordinator lock, on whichever goroutine caused the change, so observers
// must not block for long.
type Observer interface {
	// UploadStatusChanged reports every Idle/Running transition.
	UploadStatusChanged(uploading bool)
	// LogLine carries a human-readable progress line.
	LogLine(line string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Status func(uploading bool)
	Line   func(line string)
}

// UploadStatusChanged implements Observer.
func (o ObserverFuncs) UploadStatusChanged(uploading bool) {
	if o.Status != nil {
		o.Status(uploading)
	}
}

// LogLine implements Observer.
func (o ObserverFuncs) LogLine(line string) {
	if o.Line != nil {
		o.Line(line)
	}
}

// Register adds an observer and returns an id for Unregister.
func (c *Coordinator) Register(o Observer) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextObserver++
	c.observers[c.nextObserver] = o
	return c.nextObserver
}

// Unregister removes the observer registered under id.
func (c *Coordinator) Unregister(id int) {
	c.mu.Lock()
	delete(c.observers, id)
	c.mu.Unlock()
}

func (c *Coordinator) observerList() []Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observerListLocked()
}

func (c *Coordinator) observerListLocked() []Observer {
	if len(c.observers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.observers[id])
	}
	return out
}

func notifyStatus(observers []Observer, uploading bool) {
	for _, o := range observers {
		o.UploadStatusChanged(uploading)
	}
}

func (c *Coordinator) logLine(line string) {
	for _, o := range c.observerList() {
		o.LogLine(line)
	}
}
