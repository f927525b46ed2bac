package replication

import (
	"errors"
	"fmt"

	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/net/packet"
)

var (
	// ErrMalformedGroup wraps a group that failed to decode. The group keeps
	// its previous values and decoding resumes at the next group.
	ErrMalformedGroup = errors.New("malformed field group")
	// ErrTruncated means the stream ended before a group boundary, so
	// nothing after that point could be decoded.
	ErrTruncated = errors.New("truncated update")
	// ErrUnknownGhost is returned for updates that reference a ghost the
	// receiver cannot create.
	ErrUnknownGhost = errors.New("unknown ghost")
)

// PackUpdate 寫入 src 中 mask 指定的群組。每個群組前有一個存在位元；
// 存在的群組帶 16 位元長度，解碼失敗時可直接跳過該群組。
func PackUpdate(w *packet.BitWriter, src *fx.Replica, mask fx.Mask) {
	for i := range groups {
		g := &groups[i]
		present := mask&g.mask != 0
		w.WriteBool(present)
		if !present {
			continue
		}
		lenPos := w.BitLen()
		w.WriteBits(0, groupLenBits)
		start := w.BitLen()
		g.encode(w, src)
		w.PatchBits(lenPos, uint64(w.BitLen()-start), groupLenBits)
	}
}

// UnpackUpdate decodes an update written by PackUpdate into dst and
// returns the groups it applied. A group that fails keeps dst's previous
// values; the returned error then wraps ErrMalformedGroup. ErrTruncated
// means the rest of the stream was unusable.
func UnpackUpdate(r *packet.BitReader, dst *fx.Replica) (fx.Mask, error) {
	var applied fx.Mask
	var errs []error
	for i := range groups {
		g := &groups[i]
		present := r.ReadBool()
		if err := r.Err(); err != nil {
			return applied, errors.Join(append(errs, fmt.Errorf("%w: %s presence bit", ErrTruncated, g.name))...)
		}
		if !present {
			continue
		}
		n := int(r.ReadBits(groupLenBits))
		if err := r.Err(); err != nil {
			return applied, errors.Join(append(errs, fmt.Errorf("%w: %s length", ErrTruncated, g.name))...)
		}
		start := r.Pos()
		end := start + n
		outer := r.Limit()

		r.SetLimit(min(end, outer))
		tmp := *dst
		err := g.decode(r, &tmp)
		r.SetLimit(outer)

		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMalformedGroup, g.name, err))
		} else {
			*dst = tmp
			applied |= g.mask
		}
		if end > outer || !r.Seek(end) {
			return applied, errors.Join(append(errs, fmt.Errorf("%w: %s body", ErrTruncated, g.name))...)
		}
	}
	return applied, errors.Join(errs...)
}
