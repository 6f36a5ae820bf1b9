package search

import (
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"coursefind/internal/catalog"
	appLog "coursefind/internal/log"
	"coursefind/internal/model"
	"coursefind/internal/schedule"
)

// Engine caches the compiled indexes of the latest snapshot version. Indexes
// are swapped whole and never modified after publication.
type Engine struct {
	cur    atomic.Pointer[Indexes]
	group  singleflight.Group
	builds atomic.Int64
}

// NewEngine returns an engine with an empty cache.
func NewEngine() *Engine {
	return &Engine{}
}

// Indexes returns the indexes for snap, building them on a miss. Concurrent
// callers asking for the same version share one build.
func (e *Engine) Indexes(snap *catalog.Snapshot) *Indexes {
	if idx := e.cur.Load(); idx != nil && idx.Version == snap.Version {
		return idx
	}
	v, _, _ := e.group.Do(strconv.FormatUint(snap.Version, 10), func() (any, error) {
		if idx := e.cur.Load(); idx != nil && idx.Version == snap.Version {
			return idx, nil
		}
		started := time.Now()
		idx := BuildIndexes(snap)
		e.builds.Add(1)
		e.publish(idx)
		appLog.Debug("search indexes built",
			"version", idx.Version,
			"courses", idx.Courses.Len(),
			"sections", idx.Sections.Len(),
			"instructors", idx.Instructors.Len(),
			"took", time.Since(started).String(),
		)
		return idx, nil
	})
	return v.(*Indexes)
}

// publish stores idx unless a newer version is already cached.
func (e *Engine) publish(idx *Indexes) {
	for {
		old := e.cur.Load()
		if old != nil && old.Version > idx.Version {
			return
		}
		if e.cur.CompareAndSwap(old, idx) {
			return
		}
	}
}

// RebuildAsync builds indexes for snap in the background. The returned
// channel closes once they are published.
func (e *Engine) RebuildAsync(snap *catalog.Snapshot) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Indexes(snap)
	}()
	return done
}

// Search runs ComputeFilteredCourses with the cached indexes.
func (e *Engine) Search(q string, snap *catalog.Snapshot, basket []*schedule.Schedule) ([]model.CourseWithSections, error) {
	var idx *Indexes
	if q != "" {
		idx = e.Indexes(snap)
	}
	return ComputeFilteredCourses(q, snap, idx, basket)
}
