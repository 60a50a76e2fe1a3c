package dockerpool

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SandboxContainer is a recyclable container handed to a shell-capable tape
// handler for the duration of one call.
type SandboxContainer struct {
	ID       string
	TapeID   string
	LastUsed time.Time
}

// PoolManager handles the Pre-warm -> Acquire -> Scrub -> Release lifecycle
// of SandboxContainers, grounded on the teacher's channel + background
// maintainer goroutine pool pattern.
type PoolManager struct {
	mu          sync.Mutex
	available   chan *SandboxContainer
	active      map[string]*SandboxContainer
	minIdle     int
	maxCapacity int
	imageName   string
	backend     Backend
	stop        chan struct{}
}

// NewPoolManager initializes the pool and starts pre-warming in the
// background.
func NewPoolManager(minIdle, maxCap int, image string, backend Backend) *PoolManager {
	pm := &PoolManager{
		available:   make(chan *SandboxContainer, maxCap),
		active:      make(map[string]*SandboxContainer),
		minIdle:     minIdle,
		maxCapacity: maxCap,
		imageName:   image,
		backend:     backend,
		stop:        make(chan struct{}),
	}
	go pm.maintainPool()
	return pm
}

// Stop halts the background maintainer goroutine.
func (pm *PoolManager) Stop() {
	close(pm.stop)
}

// Acquire retrieves a pre-warmed container or blocks until one is ready or
// the context is cancelled.
func (pm *PoolManager) Acquire(ctx context.Context, tapeID string) (*SandboxContainer, error) {
	select {
	case c := <-pm.available:
		pm.mu.Lock()
		pm.active[c.ID] = c
		pm.mu.Unlock()

		c.LastUsed = time.Now()
		c.TapeID = tapeID

		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a container to the pool after scrubbing its state; a
// container that fails to scrub is destroyed instead of recycled.
func (pm *PoolManager) Release(c *SandboxContainer) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := pm.scrubContainer(ctx, c); err != nil {
			slog.Warn("dockerpool: scrub failed, destroying container", "container_id", c.ID, "error", err)
			pm.destroyContainer(ctx, c)
			return
		}

		pm.mu.Lock()
		delete(pm.active, c.ID)
		pm.mu.Unlock()
		pm.available <- c
	}()
}

// Exec runs a command inside an acquired container.
func (pm *PoolManager) Exec(ctx context.Context, containerID string, cmd []string) ([]byte, error) {
	return pm.backend.ExecInContainer(ctx, containerID, cmd)
}

func (pm *PoolManager) scrubContainer(ctx context.Context, c *SandboxContainer) error {
	_, err := pm.backend.ExecInContainer(ctx, c.ID, []string{"/bin/sh", "-c", "rm -rf /tmp/* && pkill -u sandboxuser"})
	return err
}

// maintainPool keeps the available channel populated up to minIdle without
// exceeding maxCapacity.
func (pm *PoolManager) maintainPool() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
			pm.mu.Lock()
			activeCount := len(pm.active)
			pm.mu.Unlock()

			availableCount := len(pm.available)
			total := activeCount + availableCount

			if availableCount < pm.minIdle && total < pm.maxCapacity {
				deficit := pm.minIdle - availableCount
				for i := 0; i < deficit; i++ {
					if total+i >= pm.maxCapacity {
						break
					}
					go pm.createContainer()
				}
			}
		}
	}
}

func (pm *PoolManager) createContainer() {
	ctx := context.Background()

	id, err := pm.backend.CreateContainer(ctx, pm.imageName)
	if err != nil {
		slog.Warn("dockerpool: failed to create sandbox container", "error", err)
		return
	}
	if err := pm.backend.StartContainer(ctx, id); err != nil {
		slog.Warn("dockerpool: failed to start sandbox container", "error", err)
		return
	}

	c := &SandboxContainer{ID: id, LastUsed: time.Now()}
	pm.available <- c
	slog.Info("dockerpool: sandbox container pre-warmed", "container_id", id)
}

func (pm *PoolManager) destroyContainer(ctx context.Context, c *SandboxContainer) {
	if err := pm.backend.RemoveContainer(ctx, c.ID); err != nil {
		slog.Warn("dockerpool: failed to remove container", "container_id", c.ID, "error", err)
	}

	dir := filepath.Join(os.TempDir(), "tapehost-sandboxes", c.ID)
	os.RemoveAll(dir)

	slog.Info("dockerpool: cleaned up container resources", "container_id", c.ID)
}

// Stats returns current pool statistics for the info/health handlers.
func (pm *PoolManager) Stats() map[string]interface{} {
	pm.mu.Lock()
	activeCount := len(pm.active)
	pm.mu.Unlock()

	return map[string]interface{}{
		"active_containers": activeCount,
		"idle_containers":   len(pm.available),
		"total_capacity":    pm.maxCapacity,
		"min_idle":          pm.minIdle,
	}
}
