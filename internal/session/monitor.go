package session

import "time"

// livenessCommand is run by the monitor. Only the ability to open a channel
// and execute matters; its exit status is ignored.
const livenessCommand = "true"

// monitor checks h every interval until it is stopped, the registry closes,
// or the connection fails. A failed check evicts h, but only if h is still
// the handle registered under its id.
func (r *Registry) monitor(h *handle) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-r.closing:
			return
		case <-ticker.C:
		}

		if !r.isCurrent(h) {
			return
		}

		_, _, _, err := h.exec(livenessCommand)
		if err == nil {
			continue
		}

		r.log.Warn("session %s failed health check: %v", h.id, err)
		r.emitEvent(h.id, EventHealthCheckFailed, err.Error())

		if r.evict(h) {
			r.closeHandle(h)
			r.emitEvent(h.id, EventDisconnected, "evicted after failed health check")
		}
		return
	}
}

func (r *Registry) isCurrent(h *handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[h.id] == h
}

// evict removes h if it is still registered. It reports whether it did.
func (r *Registry) evict(h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[h.id] != h {
		return false
	}
	delete(r.sessions, h.id)
	return true
}
