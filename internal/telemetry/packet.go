package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// TagKind identifies what a vector packet carries. Packet names are resolved to
// a tag once at the transport boundary.
type TagKind int

const (
	TagUnknown TagKind = iota
	TagFrame
	TagCutdown
)

const (
	frameTagPrefix = "Vector_"
	cutdownTagName = "Cutdown"
)

// MaxNameLength is the size of the name field on the wire.
const MaxNameLength = 10

// Tag is the typed form of a vector packet name.
type Tag struct {
	Kind  TagKind
	Index int // ordinal within a record, only for TagFrame
	raw   string
}

// FrameTag returns the tag for the i-th packet of a record.
func FrameTag(i int) Tag { return Tag{Kind: TagFrame, Index: i} }

// CutdownTag returns the cutdown command tag.
func CutdownTag() Tag { return Tag{Kind: TagCutdown} }

// ParseTag resolves a wire name.
func ParseTag(name string) Tag {
	name = strings.TrimRight(name, "\x00")
	switch {
	case name == cutdownTagName:
		return CutdownTag()
	case strings.HasPrefix(name, frameTagPrefix):
		suffix := name[len(frameTagPrefix):]
		i, err := strconv.Atoi(suffix)
		if err != nil || i < 0 || strconv.Itoa(i) != suffix {
			return Tag{Kind: TagUnknown, raw: name}
		}
		return FrameTag(i)
	default:
		return Tag{Kind: TagUnknown, raw: name}
	}
}

// Name renders the wire name.
func (t Tag) Name() string {
	switch t.Kind {
	case TagFrame:
		return frameTagPrefix + strconv.Itoa(t.Index)
	case TagCutdown:
		return cutdownTagName
	default:
		return t.raw
	}
}

func (t Tag) String() string {
	if t.Kind == TagUnknown {
		return fmt.Sprintf("unknown(%q)", t.raw)
	}
	return t.Name()
}

// VectorPacket is the radio's atomic message: a tag, a wrapping millisecond
// timestamp and three scalars.
type VectorPacket struct {
	Tag       Tag
	Timestamp uint32
	Values    [ValuesPerPacket]float32
}

// CutdownPacket builds the fire-and-forget cutdown command. Its scalar
// content is ignored by the receiver.
func CutdownPacket(ts uint32) VectorPacket {
	return VectorPacket{Tag: CutdownTag(), Timestamp: ts, Values: [ValuesPerPacket]float32{1, 0, 0}}
}
