package xref

import (
	"context"
	"fmt"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/parser"
	"github.com/wudi/pdfxref/stream"
)

// decodeObjStm parses every object of an object stream in one pass and
// caches the members whose index entry points back at this container.
// Streams inside object streams are never cached.
func (x *XRef) decodeObjStm(containerNum int, s *raw.StreamObj) ([]raw.Object, error) {
	first, err := s.Dict.Get("First")
	if err != nil {
		return nil, err
	}
	n, err := s.Dict.Get("N")
	if err != nil {
		return nil, err
	}
	firstOff, ok1 := raw.AsInt(first)
	count, ok2 := raw.AsInt(n)
	if !ok1 || !ok2 || firstOff < 0 || count < 0 {
		return nil, fmt.Errorf("%w: invalid First and N in object stream %d", ErrFormat, containerNum)
	}
	data, err := x.pipe.DecodeStream(context.Background(), s)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", containerNum, err)
	}
	// Every header pair takes at least four bytes ("0 0 ").
	if count > int64(len(data))/4 {
		return nil, fmt.Errorf("%w: object stream %d claims %d objects in %d bytes", ErrFormat, containerNum, count, len(data))
	}
	x.stats.ObjStmDecodes++

	buf := stream.NewBytes(data)
	cfg := x.parserConfig(raw.ObjectRef{Num: containerNum})
	p := parser.New(buf, cfg)
	var nums []int
	var offsets []int64
	for i := int64(0); i < count; i++ {
		num, err := p.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: object stream %d header: %v", ErrFormat, containerNum, err)
		}
		off, err := p.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: object stream %d header: %v", ErrFormat, containerNum, err)
		}
		if !isInt(num) || !isInt(off) {
			return nil, fmt.Errorf("%w: invalid object number or offset in object stream %d", ErrFormat, containerNum)
		}
		nums = append(nums, int(num.Int))
		offsets = append(offsets, off.Int)
	}

	members := make([]raw.Object, 0, len(nums))
	for i := range nums {
		length := int64(-1)
		if i < len(nums)-1 {
			length = offsets[i+1] - offsets[i]
			if length < 0 {
				return nil, fmt.Errorf("%w: offsets out of order in object stream %d", ErrFormat, containerNum)
			}
		}
		start := firstOff + offsets[i]
		if start > buf.End() {
			return nil, fmt.Errorf("%w: member %d beyond object stream %d", ErrFormat, i, containerNum)
		}
		mp := parser.New(buf.SubStream(start, length), cfg)
		obj, err := mp.GetObject(nil)
		if err != nil {
			return nil, fmt.Errorf("object stream %d member %d: %w", containerNum, i, err)
		}
		members = append(members, obj)
		if _, isStream := obj.(*raw.StreamObj); isStream {
			continue
		}
		if e, ok := x.table.get(nums[i]); ok && e.Kind == Compressed && e.Offset == int64(containerNum) && e.Gen == i {
			x.cache.Put(raw.ObjectRef{Num: nums[i]}, obj)
		}
	}
	return members, nil
}
