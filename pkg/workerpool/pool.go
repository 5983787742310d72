package workerpool

import (
	"sync"
)

// Task 池中执行的一项工作
type Task func()

// Pool 固定大小的后台工作池。预取任务经由 Submit 进入队列，
// 由固定数量的 worker 顺序消费；Stop 后不再接收新任务。
type Pool struct {
	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// New 创建并启动工作池。workers 为并发度，queueSize 为等待队列长度。
func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	p := &Pool{
		tasks: make(chan Task, queueSize),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit 提交后台任务。队列满时阻塞等待；池已停止时返回 false。
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	p.tasks <- task
	return true
}

// TrySubmit 非阻塞提交。队列满或池已停止时丢弃任务并返回 false，
// 预取属于尽力而为，丢弃不影响正确性
func (p *Pool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// QueueDepth 当前等待队列长度
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// Stop 停止接收新任务并等待在执行的任务完成
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
