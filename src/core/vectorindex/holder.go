package vectorindex

import "sync/atomic"

type snapshot struct {
	idx  *Index
	meta Meta
}

// Holder publishes the index used for serving. Readers take the current index once per request;
// a rebuilt index replaces it through Swap and is never mutated in place.
type Holder struct {
	current atomic.Pointer[snapshot]
}

func NewHolder(idx *Index, meta Meta) *Holder {
	h := &Holder{}
	h.Swap(idx, meta)
	return h
}

// Current returns the serving index. It is never nil.
func (h *Holder) Current() *Index {
	if s := h.current.Load(); s != nil {
		return s.idx
	}
	return Empty()
}

// Meta returns the build metadata of the serving index.
func (h *Holder) Meta() Meta {
	if s := h.current.Load(); s != nil {
		return s.meta
	}
	return Meta{}
}

// Snapshot returns the serving index together with its metadata from a single load.
func (h *Holder) Snapshot() (*Index, Meta) {
	if s := h.current.Load(); s != nil {
		return s.idx, s.meta
	}
	return Empty(), Meta{}
}

// Swap installs idx and returns the index it replaced.
func (h *Holder) Swap(idx *Index, meta Meta) *Index {
	if idx == nil {
		idx = Empty()
	}
	old := h.current.Swap(&snapshot{idx: idx, meta: meta})
	if old == nil {
		return Empty()
	}
	return old.idx
}
