package scheduler

// StopWorker marks a single worker as stopping so its loop exits while the
// rest of the engine keeps running.
func (e *Engine) StopWorker(id int) {
	e.workers[id].state.Store(int32(StateStopping))
}
