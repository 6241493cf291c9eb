package types

import "testing"

func TestGetTransferSyntaxInfo(t *testing.T) {
	tests := []struct {
		name             string
		uid              string
		wantName         string
		wantExplicit     bool
		wantBigEndian    bool
		wantDeflated     bool
		wantEncapsulated bool
	}{
		{"Implicit VR Little Endian", ImplicitVRLittleEndian, "Implicit VR Little Endian", false, false, false, false},
		{"Explicit VR Little Endian", ExplicitVRLittleEndian, "Explicit VR Little Endian", true, false, false, false},
		{"Explicit VR Big Endian", ExplicitVRBigEndian, "Explicit VR Big Endian", true, true, false, false},
		{"Deflated", DeflatedExplicitVRLittleEndian, "Deflated Explicit VR Little Endian", true, false, true, false},
		{"RLE", RLELossless, "RLE Lossless", true, false, false, true},
		{"JPEG Baseline", JPEGBaseline8Bit, "JPEG Baseline (Process 1)", true, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetTransferSyntaxInfo(tt.uid)
			if info.Name != tt.wantName {
				t.Errorf("GetTransferSyntaxInfo(%s).Name = %s, want %s", tt.uid, info.Name, tt.wantName)
			}
			if info.ExplicitVR != tt.wantExplicit {
				t.Errorf("GetTransferSyntaxInfo(%s).ExplicitVR = %v, want %v", tt.uid, info.ExplicitVR, tt.wantExplicit)
			}
			if info.BigEndian != tt.wantBigEndian {
				t.Errorf("GetTransferSyntaxInfo(%s).BigEndian = %v, want %v", tt.uid, info.BigEndian, tt.wantBigEndian)
			}
			if info.Deflated != tt.wantDeflated {
				t.Errorf("GetTransferSyntaxInfo(%s).Deflated = %v, want %v", tt.uid, info.Deflated, tt.wantDeflated)
			}
			if info.Encapsulated != tt.wantEncapsulated {
				t.Errorf("GetTransferSyntaxInfo(%s).Encapsulated = %v, want %v", tt.uid, info.Encapsulated, tt.wantEncapsulated)
			}
			if !info.Known {
				t.Errorf("GetTransferSyntaxInfo(%s).Known = false, want true", tt.uid)
			}
		})
	}
}

func TestGetTransferSyntaxInfo_Unknown(t *testing.T) {
	info := GetTransferSyntaxInfo("1.2.3.4")
	if info.Known {
		t.Error("unknown UID reported as known")
	}
	if !info.Encapsulated || !info.ExplicitVR {
		t.Errorf("unknown UID = %+v, want encapsulated explicit VR", info)
	}
	if IsNative("1.2.3.4") {
		t.Error("IsNative(unknown) = true, want false")
	}
}

func TestIsLossless(t *testing.T) {
	tests := []struct {
		uid  string
		want bool
	}{
		{ExplicitVRLittleEndian, true},
		{RLELossless, true},
		{JPEG2000Lossless, true},
		{JPEGBaseline8Bit, false},
		{JPEG2000, false},
	}
	for _, tt := range tests {
		if got := IsLossless(tt.uid); got != tt.want {
			t.Errorf("IsLossless(%s) = %v, want %v", tt.uid, got, tt.want)
		}
	}
}

func TestIsNative(t *testing.T) {
	for _, uid := range []string{ImplicitVRLittleEndian, ExplicitVRLittleEndian, ExplicitVRBigEndian, DeflatedExplicitVRLittleEndian} {
		if !IsNative(uid) {
			t.Errorf("IsNative(%s) = false, want true", uid)
		}
	}
	if IsNative(RLELossless) {
		t.Errorf("IsNative(%s) = true, want false", RLELossless)
	}
}
