package dtos

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2024-01-02"`, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{`"2024-01-02T10:30:00"`, time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)},
		{`"2024-01-02T10:30:00+02:00"`, time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Date
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			assert.True(t, tt.want.Equal(d.Time), "got %s", d.Time)
		})
	}

	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"last tuesday"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`20240102`), &d))
}

func TestJobUpdateRequest_PartialDecode(t *testing.T) {
	var req JobUpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"status":"OFFER","notes":""}`), &req))
	require.NotNil(t, req.Status)
	assert.Equal(t, "OFFER", *req.Status)
	require.NotNil(t, req.Notes)
	assert.Equal(t, "", *req.Notes)
	assert.Nil(t, req.CompanyName)
	assert.Nil(t, req.DateApplied)
}
