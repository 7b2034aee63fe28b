package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantName string
		wantData string
		wantErr  error
	}{
		{
			name:     "event with data",
			raw:      `{"event":"roomUpdate:42","data":{"status":"occupied"}}`,
			wantName: "roomUpdate:42",
			wantData: `{"status":"occupied"}`,
		},
		{
			name:     "type alias",
			raw:      `{"type":"activityUpdate:7","data":{"id":"a1"}}`,
			wantName: "activityUpdate:7",
			wantData: `{"id":"a1"}`,
		},
		{
			name:     "event wins over type",
			raw:      `{"event":"a","type":"b","data":1}`,
			wantName: "a",
			wantData: `1`,
		},
		{
			name:     "no data uses whole message",
			raw:      `{"type":"ping","ts":123}`,
			wantName: "ping",
			wantData: `{"type":"ping","ts":123}`,
		},
		{
			name:    "missing identifier",
			raw:     `{"data":{"x":1}}`,
			wantErr: ErrMissingEvent,
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: ErrEmptyMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if ev.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", ev.Name, tt.wantName)
			}
			if string(ev.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", ev.Data, tt.wantData)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestEncode(t *testing.T) {
	b, err := Encode("roomUpdate:42", RoomStatus{Status: RoomOccupied})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != `{"event":"roomUpdate:42","data":{"status":"occupied"}}` {
		t.Errorf("Encode = %s", b)
	}

	b, err = Encode("refresh", nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != `{"event":"refresh"}` {
		t.Errorf("Encode(nil) = %s", b)
	}
}

func TestEncodeDecodeRoomStatus(t *testing.T) {
	b, err := Encode(Key(RoomUpdate, "42"), map[string]string{"status": "occupied"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	ev, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var rs RoomStatus
	if err := json.Unmarshal(ev.Data, &rs); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.Name != "roomUpdate:42" || rs.Status != RoomOccupied {
		t.Errorf("got %s %+v", ev.Name, rs)
	}
}

func TestKey(t *testing.T) {
	if got := Key("roomUpdate", "42"); got != "roomUpdate:42" {
		t.Errorf("Key = %q", got)
	}
	if got := Key("refresh", ""); got != "refresh" {
		t.Errorf("Key without topic = %q", got)
	}
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key       string
		wantName  string
		wantTopic string
		wantOK    bool
	}{
		{"roomUpdate:42", "roomUpdate", "42", true},
		{"a:b:c", "a:b", "c", true},
		{"refresh", "refresh", "", false},
		{":42", ":42", "", false},
		{"roomUpdate:", "roomUpdate:", "", false},
	}

	for _, tt := range tests {
		name, topic, ok := SplitKey(tt.key)
		if name != tt.wantName || topic != tt.wantTopic || ok != tt.wantOK {
			t.Errorf("SplitKey(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.key, name, topic, ok, tt.wantName, tt.wantTopic, tt.wantOK)
		}
	}
}
