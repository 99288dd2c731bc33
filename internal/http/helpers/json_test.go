package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestReadJSON(t *testing.T) {
	cases := []struct {
		name   string
		ct     string
		body   string
		ok     bool
		status int
		code   string
	}{
		{"valid", "application/json", `{"name":"x"}`, true, 0, ""},
		{"charset", "application/json; charset=utf-8", `{"name":"x"}`, true, 0, ""},
		{"empty body", "application/json", ``, true, 0, ""},
		{"wrong type", "text/plain", `{"name":"x"}`, false, http.StatusBadRequest, "BAD_REQUEST"},
		{"broken", "application/json", `{"name":`, false, http.StatusBadRequest, "INVALID_JSON"},
		{"too large", "application/json", `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, false, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			r.Header.Set("Content-Type", tc.ct)
			w := httptest.NewRecorder()

			var p payload
			ok := ReadJSON(w, r, &p)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				return
			}
			assert.Equal(t, tc.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, payload{Name: "x"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"x"}`, w.Body.String())
}
