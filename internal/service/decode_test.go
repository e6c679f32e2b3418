package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderRef_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", `"cus_1"`, "cus_1"},
		{"expanded object", `{"id":"cus_2","email":"a@example.com"}`, "cus_2"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Ref providerRef `json:"ref"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"ref":`+tt.in+`}`), &v))
			assert.Equal(t, tt.want, v.Ref.String())
		})
	}
}

func TestProviderTime_Unmarshal(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		zero bool
	}{
		{"unix seconds", `1735787045`, false},
		{"unix millis", `1735787045000`, false},
		{"rfc3339", `"2025-01-02T03:04:05.000Z"`, false},
		{"numeric string", `"1735787045"`, false},
		{"empty string", `""`, true},
		{"null", `null`, true},
		{"zero", `0`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				At providerTime `json:"at"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"at":`+tt.in+`}`), &v))
			if tt.zero {
				assert.True(t, v.At.IsZero())
				assert.Nil(t, v.At.Ptr())
				return
			}
			assert.True(t, v.At.Equal(want), v.At.String())
			require.NotNil(t, v.At.Ptr())
		})
	}
}

func TestProviderTime_Invalid(t *testing.T) {
	var v struct {
		At providerTime `json:"at"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"at":"yesterday"}`), &v))
}

func TestParseMetadata(t *testing.T) {
	md := parseMetadata(map[string]string{
		"userId":        " u1 ",
		"billingPeriod": "oneTime",
		"planTier":      "Pro",
		"credits":       "11000",
	})
	assert.True(t, md.complete())
	assert.Equal(t, "u1", md.UserID)
	assert.Equal(t, "pro", md.PlanTier)
	assert.Equal(t, int64(11000), md.Credits)

	assert.False(t, parseMetadata(nil).complete())
	assert.Equal(t, int64(0), parseMetadata(map[string]string{"credits": "abc"}).Credits)
}

func TestProviderMetadata_Unmarshal(t *testing.T) {
	var v struct {
		Metadata providerMetadata `json:"metadata"`
	}
	in := `{"metadata":{"userId":"u1","credits":2400,"trial":true,"price":1e3,"note":null,"extra":{"a":1}}}`
	require.NoError(t, json.Unmarshal([]byte(in), &v))

	assert.Equal(t, "u1", v.Metadata["userId"])
	assert.Equal(t, "2400", v.Metadata["credits"])
	assert.Equal(t, "true", v.Metadata["trial"])
	assert.Equal(t, "1e3", v.Metadata["price"])
	assert.Equal(t, `{"a":1}`, v.Metadata["extra"])
	_, ok := v.Metadata["note"]
	assert.False(t, ok)
	assert.Equal(t, int64(2400), parseMetadata(v.Metadata).Credits)

	require.NoError(t, json.Unmarshal([]byte(`{"metadata":null}`), &v))
	assert.Nil(t, v.Metadata)

	assert.Error(t, json.Unmarshal([]byte(`{"metadata":"oops"}`), &v))
}
