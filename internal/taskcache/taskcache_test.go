package taskcache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/taskcache"
)

func newCache(t *testing.T) *taskcache.Cache {
	c, err := taskcache.NewCache(taskcache.CacheConfig{})
	require.NoError(t, err)
	return c
}

func taskIDs(tasks []model.Task) []string {
	ids := []string{}
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestCacheBuckets(t *testing.T) {
	d1 := model.Day{Year: 2026, Month: 10, Day: 14}
	d2 := model.Day{Year: 2026, Month: 10, Day: 15}
	k1 := model.BucketKey{ProjectID: "p1", Day: d1}
	k2 := model.BucketKey{ProjectID: "p1", Day: d2}

	tests := map[string]struct {
		exec   func(c *taskcache.Cache)
		expK1  []string
		expK2  []string
		expLoc map[string]model.BucketKey
	}{
		"Adding tasks should add them in order to their bucket.": {
			exec: func(c *taskcache.Cache) {
				c.Add(k1, model.Task{ID: "t1"})
				c.Add(k1, model.Task{ID: "t2"})
				c.Add(k2, model.Task{ID: "t3"})
			},
			expK1:  []string{"t1", "t2"},
			expK2:  []string{"t3"},
			expLoc: map[string]model.BucketKey{"t1": k1, "t2": k1, "t3": k2},
		},

		"Adding a task twice should keep a single task.": {
			exec: func(c *taskcache.Cache) {
				c.Add(k1, model.Task{ID: "t1"})
				c.Add(k1, model.Task{ID: "t1"})
				c.Add(k2, model.Task{ID: "t1"})
			},
			expK1:  []string{"t1"},
			expLoc: map[string]model.BucketKey{"t1": k1},
		},

		"Removing a task should remove it from its bucket and the index.": {
			exec: func(c *taskcache.Cache) {
				c.Add(k1, model.Task{ID: "t1"})
				c.Add(k1, model.Task{ID: "t2"})
				c.Remove("t1")
			},
			expK1:  []string{"t2"},
			expLoc: map[string]model.BucketKey{"t2": k1},
		},

		"Removing a missing task should be a no-op.": {
			exec: func(c *taskcache.Cache) {
				c.Add(k1, model.Task{ID: "t1"})
				c.Remove("t9")
			},
			expK1:  []string{"t1"},
			expLoc: map[string]model.BucketKey{"t1": k1},
		},

		"Replacing a bucket should move tasks cached on other buckets.": {
			exec: func(c *taskcache.Cache) {
				c.Add(k1, model.Task{ID: "t1"})
				c.Add(k1, model.Task{ID: "t2"})
				c.Add(k2, model.Task{ID: "t3"})
				c.Replace(k2, []model.Task{{ID: "t2"}, {ID: "t4"}, {ID: "t4"}})
			},
			expK1:  []string{"t1"},
			expK2:  []string{"t2", "t4"},
			expLoc: map[string]model.BucketKey{"t1": k1, "t2": k2, "t4": k2},
		},

		"Clearing should remove everything.": {
			exec: func(c *taskcache.Cache) {
				c.Add(k1, model.Task{ID: "t1"})
				c.Clear()
			},
			expLoc: map[string]model.BucketKey{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			c := newCache(t)
			test.exec(c)

			got1, _ := c.Peek(k1)
			got2, _ := c.Peek(k2)
			assert.Equal(test.expK1, nilIfEmpty(taskIDs(got1)))
			assert.Equal(test.expK2, nilIfEmpty(taskIDs(got2)))

			for id, expKey := range test.expLoc {
				key, ok := c.Locate(id)
				assert.True(ok, id)
				assert.Equal(expKey, key, id)
			}
			_, ok := c.Locate("t9")
			assert.False(ok)
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestCacheGetOrCreate(t *testing.T) {
	assert := assert.New(t)
	c := newCache(t)
	key := model.BucketKey{ProjectID: "p1", Day: model.Day{Year: 2026, Month: 10, Day: 14}}

	_, ok := c.Peek(key)
	assert.False(ok)

	assert.Empty(c.GetOrCreate(key))
	tasks, ok := c.Peek(key)
	assert.True(ok)
	assert.Empty(tasks)
	assert.Equal([]model.BucketKey{key}, c.Keys())

	// Returned slices are copies.
	c.Add(key, model.Task{ID: "t1", Name: "a"})
	tasks = c.GetOrCreate(key)
	tasks[0].Name = "changed"
	tasks, _ = c.Peek(key)
	assert.Equal("a", tasks[0].Name)
}

func TestCacheUpdate(t *testing.T) {
	assert := assert.New(t)
	c := newCache(t)
	key := model.BucketKey{ProjectID: "p1", Day: model.Day{Year: 2026, Month: 10, Day: 14}}

	c.Add(key, model.Task{ID: "t1", Name: "a", ReportID: "r1"})
	c.Add(key, model.Task{ID: "t2", Name: "b"})

	gotKey, ok := c.Update(model.Task{ID: "t1", Name: "a2", ReportID: "r2"})
	assert.True(ok)
	assert.Equal(key, gotKey)

	tasks, _ := c.Peek(key)
	assert.Equal([]model.Task{{ID: "t1", Name: "a2", ReportID: "r2"}, {ID: "t2", Name: "b"}}, tasks)
	assert.Empty(c.LocateReport("p1", "r1"))
	assert.Equal([]model.BucketKey{key}, c.LocateReport("p1", "r2"))

	_, ok = c.Update(model.Task{ID: "t9"})
	assert.False(ok)
}

func TestCacheLocateReport(t *testing.T) {
	assert := assert.New(t)
	c := newCache(t)
	d := model.Day{Year: 2026, Month: 10, Day: 14}
	k1 := model.BucketKey{ProjectID: "p1", Day: d.AddDays(-2)}
	k2 := model.BucketKey{ProjectID: "p1", Day: d}
	k3 := model.BucketKey{ProjectID: "p2", Day: d}

	c.Add(k1, model.Task{ID: "t1", ReportID: "r1"})
	c.Add(k2, model.Task{ID: "t2", ReportID: "r1"})
	c.Add(k2, model.Task{ID: "t3", ReportID: "r1"})
	c.Add(k3, model.Task{ID: "t4", ReportID: "r1"})
	c.Add(k2, model.Task{ID: "t5"})

	assert.Equal([]model.BucketKey{k2, k1}, c.LocateReport("p1", "r1"))
	assert.Equal([]model.BucketKey{k3}, c.LocateReport("p2", "r1"))
	assert.Empty(c.LocateReport("p1", ""))

	// The bucket stays indexed while it holds any task of the report.
	c.Remove("t2")
	assert.Equal([]model.BucketKey{k2, k1}, c.LocateReport("p1", "r1"))
	c.Remove("t3")
	assert.Equal([]model.BucketKey{k1}, c.LocateReport("p1", "r1"))
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := newCache(t)
	key := model.BucketKey{ProjectID: "p1", Day: model.Day{Year: 2026, Month: 10, Day: 14}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Add(key, model.Task{ID: "t1"})
		}()
		go func() {
			defer wg.Done()
			_, _ = c.Peek(key)
			_, _ = c.Locate("t1")
		}()
	}
	wg.Wait()

	tasks, _ := c.Peek(key)
	assert.Len(t, tasks, 1)
}
