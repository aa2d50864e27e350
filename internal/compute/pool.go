package compute

import "sync"

type BufferPool struct {
	pool sync.Pool
	size int
}

func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]float64, size)
				return &buf
			},
		},
	}
}

func (p *BufferPool) Get() []float64 {
	return *p.pool.Get().(*[]float64)
}

func (p *BufferPool) Put(buf []float64) {
	if len(buf) != p.size {
		return
	}
	for i := range buf {
		buf[i] = 0
	}
	p.pool.Put(&buf)
}
