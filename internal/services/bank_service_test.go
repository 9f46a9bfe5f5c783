package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankService_IsSupported(t *testing.T) {
	bs := NewBankService()

	assert.True(t, bs.IsSupported("014"))
	assert.True(t, bs.IsSupported("002"))
	assert.False(t, bs.IsSupported("999"))
	assert.False(t, bs.IsSupported(""))
	assert.False(t, bs.IsSupported("14")) // codes are zero-padded
}

func TestBankService_GetAllBanks(t *testing.T) {
	bs := NewBankService()

	w := httptest.NewRecorder()
	bs.GetAllBanks(w, httptest.NewRequest(http.MethodGet, "/api/v1/banks", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Cache-Control"))

	var banks []Bank
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &banks))
	assert.Len(t, banks, 17)

	byCode := make(map[string]string)
	for _, b := range banks {
		byCode[b.Code] = b.Name
	}
	assert.Equal(t, "Bank Central Asia", byCode["014"])
	assert.Equal(t, "Bank Mandiri", byCode["008"])
}
