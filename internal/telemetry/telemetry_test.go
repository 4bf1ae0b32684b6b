package telemetry

import (
	"testing"
	"time"
)

func TestDefaultSchema(t *testing.T) {
	if got := DefaultSchema.Len(); got != 17 {
		t.Fatalf("DefaultSchema.Len() = %d, want 17", got)
	}
	if got := DefaultSchema.PacketCount(); got != 6 {
		t.Errorf("PacketCount() = %d, want 6", got)
	}
	if i, ok := DefaultSchema.Index(FieldTimestamp); !ok || i != 0 {
		t.Errorf("Index(Timestamp) = %d, %v", i, ok)
	}
	if i, ok := DefaultSchema.Index(FieldHeading); !ok || i != 16 {
		t.Errorf("Index(Heading) = %d, %v", i, ok)
	}
	if _, ok := DefaultSchema.Index("RSSI"); ok {
		t.Error("RSSI should not be a schema field")
	}
}

func TestSchemaPacketCount(t *testing.T) {
	tests := []struct {
		fields int
		want   int
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{6, 2},
		{16, 6},
		{18, 6},
	}
	for _, tt := range tests {
		fields := make([]Field, tt.fields)
		for i := range fields {
			fields[i] = Field{Name: string(rune('a' + i))}
		}
		if got := NewSchema(fields...).PacketCount(); got != tt.want {
			t.Errorf("PacketCount(%d fields) = %d, want %d", tt.fields, got, tt.want)
		}
	}
}

func TestSchemaRecord_AbsentReadingsBecomeZero(t *testing.T) {
	r := DefaultSchema.Record(Readings{
		FieldTimestamp: Some(100),
		FieldPressure:  None(),
		FieldHumidity:  Some(50),
	})

	if len(r.Values) != DefaultSchema.Len() {
		t.Fatalf("record width = %d", len(r.Values))
	}
	if v, _ := r.Get(FieldTimestamp); v != 100 {
		t.Errorf("Timestamp = %v", v)
	}
	if v, _ := r.Get(FieldPressure); v != 0 {
		t.Errorf("absent Pressure = %v, want 0", v)
	}
	if v, _ := r.Get(FieldLatitude); v != 0 {
		t.Errorf("missing Latitude = %v, want 0", v)
	}
	if v, _ := r.Get(FieldHumidity); v != 50 {
		t.Errorf("Humidity = %v", v)
	}
}

func TestNewRecord_WidthMismatch(t *testing.T) {
	if _, err := NewRecord(DefaultSchema, make([]float32, 5)); err == nil {
		t.Fatal("expected error for short record")
	}
	if _, err := NewRecord(DefaultSchema, make([]float32, 17)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecordMapAndClone(t *testing.T) {
	r := DefaultSchema.Record(Readings{FieldAltitude: Some(500)})
	c := r.Clone()
	c.Values[14] = 1

	if r.Map()[FieldAltitude] != 500 {
		t.Errorf("Map()[Altitude] = %v", r.Map()[FieldAltitude])
	}
	if len(r.Map()) != 17 {
		t.Errorf("Map() has %d keys", len(r.Map()))
	}
	if r.Values[14] != 500 {
		t.Error("Clone shares storage with the original")
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		name string
		want TagKind
		idx  int
	}{
		{"Vector_0", TagFrame, 0},
		{"Vector_5", TagFrame, 5},
		{"Vector_12", TagFrame, 12},
		{"Vector_5\x00\x00", TagFrame, 5},
		{"Cutdown", TagCutdown, 0},
		{"Cutdown\x00\x00\x00", TagCutdown, 0},
		{"SensorData", TagUnknown, 0},
		{"Vector_x", TagUnknown, 0},
		{"Vector_-1", TagUnknown, 0},
		{"Vector_+1", TagUnknown, 0},
		{"Vector_01", TagUnknown, 0},
		{"Vector_", TagUnknown, 0},
		{"", TagUnknown, 0},
	}
	for _, tt := range tests {
		got := ParseTag(tt.name)
		if got.Kind != tt.want || got.Index != tt.idx {
			t.Errorf("ParseTag(%q) = %+v, want kind %d index %d", tt.name, got, tt.want, tt.idx)
		}
	}
}

func TestTagName(t *testing.T) {
	if got := FrameTag(3).Name(); got != "Vector_3" {
		t.Errorf("FrameTag(3).Name() = %q", got)
	}
	if got := CutdownTag().Name(); got != "Cutdown" {
		t.Errorf("CutdownTag().Name() = %q", got)
	}
	if got := ParseTag("Other").Name(); got != "Other" {
		t.Errorf("unknown tag name = %q", got)
	}
	if ParseTag(FrameTag(4).Name()) != FrameTag(4) {
		t.Error("frame tag does not survive a name round trip")
	}
}

func TestCutdownPacket(t *testing.T) {
	p := CutdownPacket(7)
	if p.Tag.Kind != TagCutdown || p.Timestamp != 7 {
		t.Errorf("CutdownPacket = %+v", p)
	}
}

func TestMillisTimestampWraps(t *testing.T) {
	ts := time.UnixMilli(1<<32 + 1234)
	if got := MillisTimestamp(ts); got != 1234 {
		t.Errorf("MillisTimestamp = %d, want 1234", got)
	}
}

func TestFieldLabel(t *testing.T) {
	if got := (Field{"Pressure", "mbar"}).Label(); got != "Pressure (mbar)" {
		t.Errorf("Label() = %q", got)
	}
	if got := (Field{Name: "Heading"}).Label(); got != "Heading" {
		t.Errorf("Label() = %q", got)
	}
}
