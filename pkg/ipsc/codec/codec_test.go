package codec

import "testing"

func TestPackUnpackIDRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		val   uint32
		width int
	}{
		{"4-byte radio id", 311860, 4},
		{"3-byte subscriber id", 31337, 3},
		{"2-byte port", 50000, 2},
		{"zero", 0, 4},
		{"max 3-byte", 0xFFFFFF, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := PackID(tt.val, tt.width)
			if len(b) != tt.width {
				t.Fatalf("expected %d bytes, got %d", tt.width, len(b))
			}
			got := UnpackID(b)
			if got != tt.val {
				t.Errorf("UnpackID(PackID(%d)) = %d", tt.val, got)
			}
		})
	}
}

func TestIPRoundTrip(t *testing.T) {
	addrs := []string{"192.168.1.100", "10.0.0.1", "0.0.0.0", "255.255.255.255"}
	for _, addr := range addrs {
		b, err := IPToBytes(addr)
		if err != nil {
			t.Fatalf("IPToBytes(%q): %v", addr, err)
		}
		if got := BytesToIP(b); got != addr {
			t.Errorf("BytesToIP(IPToBytes(%q)) = %q", addr, got)
		}
	}
}

func TestIPToBytesInvalid(t *testing.T) {
	if _, err := IPToBytes("not-an-ip"); err == nil {
		t.Fatal("expected error for invalid address")
	}
	if _, err := IPToBytes("::1"); err == nil {
		t.Fatal("expected error for IPv6 address")
	}
}

func TestModeByteTable(t *testing.T) {
	tests := []struct {
		ts1, ts2 bool
		want     byte
	}{
		{false, false, 0x65},
		{false, true, 0x66},
		{true, false, 0x69},
		{true, true, 0x6A},
	}
	for _, tt := range tests {
		if got := ModeByte(tt.ts1, tt.ts2); got != tt.want {
			t.Errorf("ModeByte(%v, %v) = 0x%02X, want 0x%02X", tt.ts1, tt.ts2, got, tt.want)
		}
	}
}

func TestDecodeMode(t *testing.T) {
	// operational + digital + ts1 + ts2
	b := byte(0b01100010) | TS1Mask
	d := DecodeMode(b)
	if !d.PeerOperational {
		t.Error("expected PeerOperational set")
	}
	if d.PeerMode != PeerModeDigital {
		t.Errorf("expected PeerModeDigital, got %v", d.PeerMode)
	}
	if !d.TS1 || !d.TS2 {
		t.Error("expected both timeslots linked")
	}
}

func TestDecodeModeAllFields(t *testing.T) {
	tests := []struct {
		name string
		b    byte
		want ModeDecode
	}{
		{"all clear", 0x00, ModeDecode{PeerMode: PeerModeNoRadio}},
		{"analog only", 0x10, ModeDecode{PeerMode: PeerModeAnalog}},
		{"unknown mode bits", 0x30, ModeDecode{PeerMode: PeerModeUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeMode(tt.b)
			if got != tt.want {
				t.Errorf("DecodeMode(0x%02X) = %+v, want %+v", tt.b, got, tt.want)
			}
		})
	}
}

func TestDecodeFlagsBaseVsAuth(t *testing.T) {
	base := DecodeFlags(FlagsBytes(FlagsBase))
	if base.Auth {
		t.Error("expected auth flag clear for FlagsBase")
	}
	if !base.Data || !base.Voice {
		t.Error("expected data and voice flags set for FlagsBase")
	}

	auth := DecodeFlags(FlagsBytes(FlagsAuth))
	if !auth.Auth {
		t.Error("expected auth flag set for FlagsAuth")
	}
	if !auth.Data || !auth.Voice {
		t.Error("expected data and voice flags preserved with auth")
	}
}

func TestDecodeFlagsIndependentBits(t *testing.T) {
	var b [4]byte
	b[2] = CSBKMask | RptMonMask
	b[3] = XNLMasterMask | MstrPeerMask

	d := DecodeFlags(b)
	if !d.CSBK || !d.RCM || d.ConApp {
		t.Errorf("byte-2 bits decoded wrong: %+v", d)
	}
	if !d.XNLMaster || !d.Master || d.XNLConn || d.XNLSlave || d.Auth || d.Data || d.Voice {
		t.Errorf("byte-3 bits decoded wrong: %+v", d)
	}
}

func TestFlagsBytesRoundTrip(t *testing.T) {
	for _, f := range []uint32{FlagsBase, FlagsAuth, 0, 0xFFFFFFFF} {
		b := FlagsBytes(f)
		got := UnpackID(b[:])
		if got != f {
			t.Errorf("FlagsBytes round trip: got 0x%08X, want 0x%08X", got, f)
		}
	}
}
