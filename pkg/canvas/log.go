package canvas

import "sync"

// Log is the ordered operation log for one session's canvas. Append order is
// the replay order.
type Log struct {
	mu  sync.Mutex
	ops []Operation
}

func NewLog() *Log { return &Log{} }

func (l *Log) Append(op Operation) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// Ops returns a snapshot copy safe to replay while the log keeps growing.
func (l *Log) Ops() []Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

func (l *Log) Reset() {
	l.mu.Lock()
	l.ops = nil
	l.mu.Unlock()
}

// Update rewrites the entry matching key in place; used for text edits.
func (l *Log) Update(key Key, fn func(*Operation)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.ops {
		if l.ops[i].Key() == key {
			fn(&l.ops[i])
			return true
		}
	}
	return false
}

// Replay builds a surface from scratch by applying ops in log order.
func Replay(ops []Operation, meta Metadata) (*Surface, error) {
	s := NewSurface(meta)
	for i := range ops {
		if err := s.Apply(&ops[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}
