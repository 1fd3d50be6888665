package queue

import (
	"camliup/internal/blobref"
)

// File is one unit of upload work. Two Files with the same Ref are
// interchangeable; Handle only says where to read the bytes from.
type File struct {
	Ref    blobref.Ref `json:"blobref"`
	Handle string      `json:"handle"`
	Size   int64       `json:"size"`
}

// Pending is an ordered set of Files keyed by Ref. The zero value is ready to
// use. Callers serialize access.
type Pending struct {
	order []File
	index map[blobref.Ref]struct{}
}

// TryEnqueue appends f unless a File with the same Ref is already pending.
func (p *Pending) TryEnqueue(f File) bool {
	if p.index == nil {
		p.index = make(map[blobref.Ref]struct{})
	}
	if _, ok := p.index[f.Ref]; ok {
		return false
	}
	p.index[f.Ref] = struct{}{}
	p.order = append(p.order, f)
	return true
}

// Snapshot returns a copy of the pending Files in insertion order.
func (p *Pending) Snapshot() []File {
	if len(p.order) == 0 {
		return nil
	}
	out := make([]File, len(p.order))
	copy(out, p.order)
	return out
}

// Remove drops ref from both the order and the index. It reports whether ref
// was pending.
func (p *Pending) Remove(ref blobref.Ref) bool {
	if _, ok := p.index[ref]; !ok {
		return false
	}
	delete(p.index, ref)
	for i, f := range p.order {
		if f.Ref == ref {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether ref is pending.
func (p *Pending) Contains(ref blobref.Ref) bool {
	_, ok := p.index[ref]
	return ok
}

// Len returns the number of pending Files.
func (p *Pending) Len() int { return len(p.order) }

// TotalBytes sums the recorded sizes of pending Files.
func (p *Pending) TotalBytes() int64 {
	var total int64
	for _, f := range p.order {
		if f.Size > 0 {
			total += f.Size
		}
	}
	return total
}
