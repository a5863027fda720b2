// Package object reads and writes HDF5 object headers.
//
// Every group and dataset has an object header: a list of messages holding
// its metadata. Version 1 headers (older files) and version 2 headers
// (signature "OHDR") are both read, including continuation blocks. Only
// version 2 headers are written, as a single checksummed chunk padded to
// a caller-chosen size so that they can later be rewritten in place.
package object

import (
	"errors"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

var (
	SignatureV2           = []byte("OHDR")
	SignatureContinuation = []byte("OCHK")
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksum           = errors.New("object header checksum mismatch")
	ErrTooLarge           = errors.New("header message too large")
)

// Header is a decoded object header.
type Header struct {
	Version  uint8
	Address  uint64
	Flags    uint8
	RefCount uint32

	// Size is the number of bytes of the first chunk, prefix and checksum
	// included. Rewrites that fit in Size can be done in place.
	Size uint64

	// Continued is set when messages were spread over continuation blocks.
	Continued bool

	Messages []message.Message
}

// Find returns the first message of type typ, or nil.
func (h *Header) Find(typ message.Type) message.Message {
	for _, m := range h.Messages {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

// All returns every message of type typ.
func (h *Header) All(typ message.Type) []message.Message {
	var out []message.Message
	for _, m := range h.Messages {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

// Set replaces the first message of the same type or appends msg.
func (h *Header) Set(msg message.Message) {
	for i, m := range h.Messages {
		if m.Type() == msg.Type() {
			h.Messages[i] = msg
			return
		}
	}
	h.Messages = append(h.Messages, msg)
}

// Remove drops the messages for which drop returns true and reports how
// many were removed.
func (h *Header) Remove(drop func(message.Message) bool) int {
	kept := h.Messages[:0]
	for _, m := range h.Messages {
		if !drop(m) {
			kept = append(kept, m)
		}
	}
	n := len(h.Messages) - len(kept)
	h.Messages = kept
	return n
}

func (h *Header) Dataspace() *message.Dataspace {
	m, _ := h.Find(message.TypeDataspace).(*message.Dataspace)
	return m
}

func (h *Header) Datatype() *message.Datatype {
	m, _ := h.Find(message.TypeDatatype).(*message.Datatype)
	return m
}

func (h *Header) Layout() *message.DataLayout {
	m, _ := h.Find(message.TypeDataLayout).(*message.DataLayout)
	return m
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	m, _ := h.Find(message.TypeFilterPipeline).(*message.FilterPipeline)
	return m
}

func (h *Header) FillValue() *message.FillValue {
	m, _ := h.Find(message.TypeFillValue).(*message.FillValue)
	return m
}

func (h *Header) LinkInfo() *message.LinkInfo {
	m, _ := h.Find(message.TypeLinkInfo).(*message.LinkInfo)
	return m
}

func (h *Header) SymbolTable() *message.SymbolTable {
	m, _ := h.Find(message.TypeSymbolTable).(*message.SymbolTable)
	return m
}

func (h *Header) AttributeInfo() *message.AttributeInfo {
	m, _ := h.Find(message.TypeAttributeInfo).(*message.AttributeInfo)
	return m
}

// IsGroup reports whether the header describes a group.
func (h *Header) IsGroup() bool {
	return h.Find(message.TypeLinkInfo) != nil || h.Find(message.TypeSymbolTable) != nil
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool {
	return h.Find(message.TypeDataLayout) != nil
}

// Links returns the link messages in header order.
func (h *Header) Links() []*message.Link {
	var out []*message.Link
	for _, m := range h.Messages {
		if l, ok := m.(*message.Link); ok {
			out = append(out, l)
		}
	}
	return out
}

// Link returns the link called name.
func (h *Header) Link(name string) *message.Link {
	for _, l := range h.Links() {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Attributes returns the attribute messages in header order.
func (h *Header) Attributes() []*message.Attribute {
	var out []*message.Attribute
	for _, m := range h.Messages {
		if a, ok := m.(*message.Attribute); ok {
			out = append(out, a)
		}
	}
	return out
}

// Attribute returns the attribute called name.
func (h *Header) Attribute(name string) *message.Attribute {
	for _, a := range h.Attributes() {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Read decodes the object header at address.
func Read(r *binary.Reader, address uint64) (*Header, error) {
	peek, err := r.At(int64(address)).ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(peek) == string(SignatureV2) {
		return readV2(r, address)
	}
	if peek[0] == 1 {
		return readV1(r, address)
	}
	return nil, ErrInvalidHeader
}
