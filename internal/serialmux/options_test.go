package serialmux

import (
	"strings"
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "explicit values",
			opts: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 2, Parity: "E"},
		},
		{
			name: "long parity names",
			opts: PortOptions{Parity: " odd "},
			want: PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{
			name: "fastest radio rate",
			opts: PortOptions{BaudRate: 230400},
			want: PortOptions{BaudRate: 230400, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{name: "rate the radio does not offer", opts: PortOptions{BaudRate: 14400}, wantErr: true},
		{name: "seven data bits", opts: PortOptions{DataBits: 7}, wantErr: true},
		{name: "data bits too large", opts: PortOptions{DataBits: 9}, wantErr: true},
		{name: "stop bits", opts: PortOptions{StopBits: 3}, wantErr: true},
		{name: "parity", opts: PortOptions{Parity: "mark"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 57600, Parity: "none"}) {
		t.Error("defaults should equal their explicit form")
	}
	if (PortOptions{}).Equal(PortOptions{BaudRate: 9600}) {
		t.Error("different baud rates compared equal")
	}
	if (PortOptions{DataBits: 2}).Equal(PortOptions{DataBits: 2}) {
		t.Error("invalid options compared equal")
	}
}

func TestPortOptions_String(t *testing.T) {
	tests := []struct {
		opts PortOptions
		want string
	}{
		{PortOptions{}, "57600 8N1"},
		{PortOptions{BaudRate: 115200, StopBits: 2, Parity: "even"}, "115200 8E2"},
	}
	for _, tt := range tests {
		if got := tt.opts.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.opts, got, tt.want)
		}
	}
	if got := (PortOptions{BaudRate: 300}).String(); !strings.HasPrefix(got, "invalid: unsupported baud rate 300") {
		t.Errorf("String() = %q for an unsupported rate", got)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		opts PortOptions
		want serial.Mode
	}{
		{PortOptions{}, serial.Mode{BaudRate: 57600, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}},
		{PortOptions{StopBits: 2, Parity: "E"}, serial.Mode{BaudRate: 57600, DataBits: 8, StopBits: serial.TwoStopBits, Parity: serial.EvenParity}},
		{PortOptions{BaudRate: 115200, Parity: "O"}, serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.OddParity}},
	}
	for _, tt := range tests {
		got, err := tt.opts.SerialMode()
		if err != nil {
			t.Fatalf("SerialMode(%+v) error = %v", tt.opts, err)
		}
		if *got != tt.want {
			t.Errorf("SerialMode(%+v) = %+v, want %+v", tt.opts, *got, tt.want)
		}
	}

	if _, err := (PortOptions{Parity: "X"}).SerialMode(); err == nil {
		t.Error("expected error for invalid parity")
	}
}

func TestNewRealSerialMux_InvalidPath(t *testing.T) {
	mux, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		t.Error("expected error when opening non-existent serial port")
		mux.Close()
	}
}

func TestNewRealSerialMux_InvalidOptions(t *testing.T) {
	if _, err := NewRealSerialMux("/dev/null", PortOptions{StopBits: 5}); err == nil {
		t.Error("expected error for invalid options")
	}
}
