package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarwatch/internal/types"
)

func (e *alertEnv) studentRequest(t *testing.T, method, path, studentID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if studentID != "" {
		req = req.WithContext(types.WithActor(req.Context(), types.Actor{StudentID: studentID}))
	}
	return serve(NewAlertHandler(e.svc, discardLogger()).RegisterRoutes, req)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAlertHandler_List(t *testing.T) {
	env := newAlertEnv(t)
	deadline := env.deadlineAlert(t)
	goal := env.goalAlert(t)

	rec := env.studentRequest(t, http.MethodPost, "/alerts/"+goal.ID+"/snooze", "student-1")
	require.Equal(t, http.StatusOK, rec.Code)

	type listBody struct {
		Data []struct {
			ID              string `json:"id"`
			EffectiveStatus string `json:"effective_status"`
			ScholarshipName string `json:"scholarship_name"`
		} `json:"data"`
	}

	rec = env.studentRequest(t, http.MethodGet, "/alerts", "student-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, deadline.ID, body.Data[0].ID)
	assert.Equal(t, "Gates Scholarship", body.Data[0].ScholarshipName)

	rec = env.studentRequest(t, http.MethodGet, "/alerts?include_snoozed=true", "student-1")
	require.Equal(t, http.StatusOK, rec.Code)
	body = listBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, deadline.ID, body.Data[0].ID, "deadline-bearing alerts sort first")
	assert.Equal(t, "snoozed", body.Data[1].EffectiveStatus)
}

func TestAlertHandler_ListEmptyIsArray(t *testing.T) {
	env := newAlertEnv(t)
	rec := env.studentRequest(t, http.MethodGet, "/alerts", "student-2")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestAlertHandler_Errors(t *testing.T) {
	env := newAlertEnv(t)
	alert := env.deadlineAlert(t)

	tests := []struct {
		name       string
		method     string
		path       string
		student    string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"no session", http.MethodGet, "/alerts", "", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"bad flag", http.MethodGet, "/alerts?include_snoozed=maybe", "student-1", http.StatusBadRequest, types.ErrCodeValidationInvalidInput},
		{"other student", http.MethodPost, "/alerts/" + alert.ID + "/snooze", "student-2", http.StatusForbidden, types.ErrCodePermissionOwnerMismatch},
		{"unknown alert", http.MethodPost, "/alerts/nope/dismiss", "student-1", http.StatusNotFound, types.ErrCodeNotFoundAlert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.studentRequest(t, tt.method, tt.path, tt.student)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), errorCode(t, rec))
		})
	}
}

func TestAlertHandler_DismissThenSnooze(t *testing.T) {
	env := newAlertEnv(t)
	alert := env.deadlineAlert(t)
	path := "/alerts/" + alert.ID

	rec := env.studentRequest(t, http.MethodPost, path+"/dismiss", "student-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"dismissed"`)

	rec = env.studentRequest(t, http.MethodPost, path+"/dismiss", "student-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.studentRequest(t, http.MethodPost, path+"/snooze", "student-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictAlertDismissed), errorCode(t, rec))
}
