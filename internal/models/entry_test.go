package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hhmm string) int64 {
	t, err := time.Parse("2006-01-02 15:04", "2026-03-01 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

func TestEntry_Overlaps(t *testing.T) {
	a := &Entry{ID: "a", Start: at("10:00"), End: at("11:00")}
	b := &Entry{ID: "b", Start: at("10:30"), End: at("11:30")}
	c := &Entry{ID: "c", Start: at("11:00"), End: at("12:00")}

	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))
	assert.False(t, a.Overlaps(c), "touching windows do not overlap")
	assert.True(t, b.Overlaps(c))
}

func TestEntry_Covers(t *testing.T) {
	e := &Entry{Start: at("10:00"), End: at("11:00")}

	assert.True(t, e.Covers(time.UnixMilli(at("10:00"))))
	assert.True(t, e.Covers(time.UnixMilli(at("10:59"))))
	assert.False(t, e.Covers(time.UnixMilli(at("11:00"))))
	assert.True(t, e.Expired(time.UnixMilli(at("11:00"))))
	assert.False(t, e.Expired(time.UnixMilli(at("10:59"))))
}

func TestEntry_Validate(t *testing.T) {
	valid := Entry{ID: "x", From: "espnplus", Start: at("10:00"), End: at("11:00")}
	require.NoError(t, valid.Validate())

	missingID := valid
	missingID.ID = " "
	assert.Error(t, missingID.Validate())

	backwards := valid
	backwards.End = backwards.Start
	var verr ErrValidation
	require.ErrorAs(t, backwards.Validate(), &verr)
	assert.Equal(t, "end", verr.Field)
}

func TestEntry_Flags(t *testing.T) {
	e := &Entry{}
	assert.False(t, e.IsLinear())
	assert.False(t, e.IsScheduled())

	e.Linear = BoolPtr(true)
	e.Channel = IntPtr(4)
	assert.True(t, e.IsLinear())
	assert.True(t, e.IsScheduled())
}

func TestProviderState_EncodeDecode(t *testing.T) {
	type mlbState struct {
		DeviceID    string `json:"device_id"`
		AccessToken string `json:"access_token"`
	}

	state := &ProviderState{Key: "mlbtv"}
	require.NoError(t, state.Encode(mlbState{DeviceID: "d-1", AccessToken: "tok"}))
	assert.JSONEq(t, `{"device_id":"d-1","access_token":"tok"}`, state.Data)

	var out mlbState
	require.NoError(t, state.Decode(&out))
	assert.Equal(t, "d-1", out.DeviceID)

	var empty mlbState
	require.NoError(t, (&ProviderState{Key: "x"}).Decode(&empty))
	assert.Empty(t, empty.DeviceID)

	assert.Error(t, (&ProviderState{Key: "x", Data: "{"}).Decode(&empty))
}

func TestULID_RoundTrip(t *testing.T) {
	id := NewULID()

	var scanned ULID
	require.NoError(t, scanned.Scan([]byte(id.String())))
	assert.Equal(t, id, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())
}
