package engine

import "sync"

// Coordinator owns the process-wide operation slots. Backups and restores
// each get a single slot: a second operation of the same kind fails
// immediately rather than queueing. The two slots are deliberately
// independent; the restore path never takes the backup slot because its
// safety backup goes through the lock-free produce primitive.
type Coordinator struct {
	mu        sync.Mutex
	backup    bool
	restoring bool
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// TryAcquireBackup claims the backup slot. Returns false if a backup is
// already in flight.
func (c *Coordinator) TryAcquireBackup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backup {
		return false
	}
	c.backup = true
	return true
}

func (c *Coordinator) ReleaseBackup() {
	c.mu.Lock()
	c.backup = false
	c.mu.Unlock()
}

// TryAcquireRestore claims the restore slot. Returns false if a restore is
// already in flight.
func (c *Coordinator) TryAcquireRestore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoring {
		return false
	}
	c.restoring = true
	return true
}

func (c *Coordinator) ReleaseRestore() {
	c.mu.Lock()
	c.restoring = false
	c.mu.Unlock()
}
