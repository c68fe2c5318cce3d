package interp

import (
	"sync"

	"github.com/specialistvlad/wcctgo/internal/tensor"
)

// valueStore holds the tensors produced during one run. Each value is written
// once by its producer and then only read, so sync.Map fits the access
// pattern of many concurrent workers touching disjoint keys.
type valueStore struct {
	values sync.Map // Key: value name, Value: *tensor.Tensor
}

func (s *valueStore) put(name string, t *tensor.Tensor) {
	s.values.Store(name, t)
}

func (s *valueStore) get(name string) (*tensor.Tensor, bool) {
	v, ok := s.values.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*tensor.Tensor), true
}
