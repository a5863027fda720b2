package filter

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// Pipeline is an ordered set of filters for one dataset.
type Pipeline struct {
	filters []Filter
	// Position of each filter in the stored pipeline, for the chunk mask.
	slots []int
	total int
}

// NewPipeline builds a pipeline from a filter pipeline message. Optional
// filters that are not available are dropped with a warning; chunks written
// with them must have the matching mask bit set to be readable.
func NewPipeline(fp *message.FilterPipeline, elemSize int) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	p.total = len(fp.Filters)
	for i, info := range fp.Filters {
		f, err := New(info, elemSize)
		if err != nil {
			return nil, err
		}
		if f == nil {
			log.Warningf("ignoring optional filter %s (id %d)", NameOf(info.ID), info.ID)
			continue
		}
		p.filters = append(p.filters, f)
		p.slots = append(p.slots, i)
	}
	return p, nil
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return len(p.filters) == 0 }

func (p *Pipeline) Len() int { return len(p.filters) }

// Names lists the filters in pipeline order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.filters))
	for i, f := range p.filters {
		out[i] = f.Name()
	}
	return out
}

// Encode runs every filter in order and returns the stored bytes and the
// chunk filter mask. Dropped optional filters are marked as skipped.
func (p *Pipeline) Encode(input []byte) ([]byte, uint32, error) {
	var mask uint32
	for i := 0; i < p.total; i++ {
		mask |= 1 << uint(i)
	}
	data := input
	for i, f := range p.filters {
		out, err := f.Encode(data)
		if err != nil {
			return nil, 0, fmt.Errorf("filter %s encode: %w", f.Name(), err)
		}
		data = out
		mask &^= 1 << uint(p.slots[i])
	}
	return data, mask, nil
}

// Decode reverses the pipeline, skipping filters whose bit is set in mask.
func (p *Pipeline) Decode(input []byte, mask uint32) ([]byte, error) {
	data := input
	for i := len(p.filters) - 1; i >= 0; i-- {
		if mask&(1<<uint(p.slots[i])) != 0 {
			continue
		}
		out, err := p.filters[i].Decode(data)
		if err != nil {
			return nil, fmt.Errorf("filter %s decode: %w", p.filters[i].Name(), err)
		}
		data = out
	}
	return data, nil
}
