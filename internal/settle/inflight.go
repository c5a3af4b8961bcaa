package settle

import (
	"sync"
)

// lockKey 在途结算的互斥键
type lockKey struct {
	projectId   int64
	milestoneId int64
}

// inflightLocks 以(project, milestone)为键的在途结算检测。
// 同一里程碑的并发结算在提交前就被拒绝，而不是依赖链上回滚第二笔。
type inflightLocks struct {
	mu   sync.Mutex
	held map[lockKey]struct{}
}

func newInflightLocks() *inflightLocks {
	return &inflightLocks{held: make(map[lockKey]struct{})}
}

// tryAcquire 尝试占用键；已有在途结算时返回false
func (l *inflightLocks) tryAcquire(projectId, milestoneId int64) bool {
	key := lockKey{projectId: projectId, milestoneId: milestoneId}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.held[key]; exists {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// release 释放键
func (l *inflightLocks) release(projectId, milestoneId int64) {
	key := lockKey{projectId: projectId, milestoneId: milestoneId}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
