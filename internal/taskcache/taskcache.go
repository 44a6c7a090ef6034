package taskcache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
)

// CacheConfig is the configuration for the task bucket cache.
type CacheConfig struct {
	Logger log.Logger
}

func (c *CacheConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "taskcache.Cache"})
	return nil
}

type reportKey struct {
	projectID string
	reportID  string
}

// Cache is an in-memory store of tasks grouped in buckets by project and day.
//
// A task ID lives in a single bucket. The cache keeps an index of task IDs and
// report IDs to their buckets so lookups don't need to scan buckets.
type Cache struct {
	buckets  map[model.BucketKey][]model.Task
	byID     map[string]model.BucketKey
	byReport map[reportKey]map[model.BucketKey]int
	mu       sync.RWMutex
	logger   log.Logger
}

// NewCache returns a new empty cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Cache{
		buckets:  map[model.BucketKey][]model.Task{},
		byID:     map[string]model.BucketKey{},
		byReport: map[reportKey]map[model.BucketKey]int{},
		logger:   cfg.Logger,
	}, nil
}

// GetOrCreate returns the tasks of the bucket, creating an empty bucket if missing.
func (c *Cache) GetOrCreate(key model.BucketKey) []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, ok := c.buckets[key]
	if !ok {
		c.buckets[key] = []model.Task{}
		return []model.Task{}
	}

	return copyTasks(tasks)
}

// Peek returns the tasks of the bucket without creating it.
func (c *Cache) Peek(key model.BucketKey) ([]model.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tasks, ok := c.buckets[key]
	if !ok {
		return nil, false
	}

	return copyTasks(tasks), true
}

// Add appends the task to the bucket. It returns false (and does nothing) if a
// task with the same ID is already cached.
func (c *Cache) Add(key model.BucketKey, task model.Task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.byID[task.ID]; ok {
		c.logger.Debugf("Task %s already cached on %s, ignoring add", task.ID, current)
		return false
	}

	c.buckets[key] = append(c.buckets[key], task)
	c.index(key, task)

	return true
}

// Update replaces the cached task with the same ID, in its bucket.
// It returns the bucket and false if the task is not cached.
func (c *Cache) Update(task model.Task) (model.BucketKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.byID[task.ID]
	if !ok {
		return model.BucketKey{}, false
	}

	tasks := c.buckets[key]
	for i, t := range tasks {
		if t.ID != task.ID {
			continue
		}
		c.unindex(key, t)
		tasks[i] = task
		c.index(key, task)
		return key, true
	}

	return model.BucketKey{}, false
}

// Remove deletes the task with the ID from its bucket.
func (c *Cache) Remove(id string) (model.BucketKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.byID[id]
	if !ok {
		return model.BucketKey{}, false
	}

	c.removeFromBucket(key, id)
	return key, true
}

// Replace sets the tasks of a bucket, used when loading buckets from the server.
// Tasks cached on other buckets are moved to this one.
func (c *Cache) Replace(key model.BucketKey, tasks []model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.buckets[key] {
		c.unindex(key, t)
	}

	newTasks := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if other, ok := c.byID[t.ID]; ok {
			if other == key {
				// Repeated on the same load.
				continue
			}
			c.removeFromBucket(other, t.ID)
		}
		newTasks = append(newTasks, t)
		c.index(key, t)
	}

	c.buckets[key] = newTasks
}

// Locate returns the bucket that holds the task ID.
func (c *Cache) Locate(id string) (model.BucketKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key, ok := c.byID[id]
	return key, ok
}

// LocateReport returns the buckets of the project that hold tasks of the
// report, most recent day first.
func (c *Cache) LocateReport(projectID, reportID string) []model.BucketKey {
	if reportID == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]model.BucketKey, 0, len(c.byReport[reportKey{projectID: projectID, reportID: reportID}]))
	for k := range c.byReport[reportKey{projectID: projectID, reportID: reportID}] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[j].Day.Before(keys[i].Day) })

	return keys
}

// Keys returns all the bucket keys, sorted by project and day.
func (c *Cache) Keys() []model.BucketKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]model.BucketKey, 0, len(c.buckets))
	for k := range c.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProjectID != keys[j].ProjectID {
			return keys[i].ProjectID < keys[j].ProjectID
		}
		return keys[i].Day.Before(keys[j].Day)
	})

	return keys
}

// Clear removes all the buckets.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buckets = map[model.BucketKey][]model.Task{}
	c.byID = map[string]model.BucketKey{}
	c.byReport = map[reportKey]map[model.BucketKey]int{}
}

func (c *Cache) removeFromBucket(key model.BucketKey, id string) {
	tasks := c.buckets[key]
	for i, t := range tasks {
		if t.ID != id {
			continue
		}
		c.unindex(key, t)
		c.buckets[key] = append(tasks[:i:i], tasks[i+1:]...)
		return
	}
}

func (c *Cache) index(key model.BucketKey, t model.Task) {
	c.byID[t.ID] = key
	if t.ReportID == "" {
		return
	}

	rk := reportKey{projectID: key.ProjectID, reportID: t.ReportID}
	if c.byReport[rk] == nil {
		c.byReport[rk] = map[model.BucketKey]int{}
	}
	c.byReport[rk][key]++
}

func (c *Cache) unindex(key model.BucketKey, t model.Task) {
	delete(c.byID, t.ID)
	if t.ReportID == "" {
		return
	}

	rk := reportKey{projectID: key.ProjectID, reportID: t.ReportID}
	c.byReport[rk][key]--
	if c.byReport[rk][key] <= 0 {
		delete(c.byReport[rk], key)
	}
	if len(c.byReport[rk]) == 0 {
		delete(c.byReport, rk)
	}
}

func copyTasks(tasks []model.Task) []model.Task {
	cp := make([]model.Task, len(tasks))
	copy(cp, tasks)
	return cp
}
