package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusAcceptsBothVocabularies(t *testing.T) {
	cases := map[string]Status{
		"draft":            StatusDraft,
		"Draft":            StatusDraft,
		"pending_checker":  StatusPendingChecker,
		"Pending_Approval": StatusPendingChecker,
		"pending_approver": StatusPendingApprover,
		"completed":        StatusApproved,
		"Approved":         StatusApproved,
		" REJECTED ":       StatusRejected,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseStatus("archived")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestStatusMappingTable(t *testing.T) {
	assert.Equal(t, "pending_approver", StatusPendingApprover.String())
	assert.Equal(t, "Pending_Approval", StatusPendingApprover.Label())
	assert.Equal(t, StepApprover, StatusPendingApprover.Step())
	assert.Equal(t, "completed", StatusApproved.String())
	assert.Equal(t, StepNone, StatusApproved.Step())
	assert.Equal(t, StepSelf, StatusRejected.Step())
	for _, s := range AllStatuses() {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestStatusJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		Status Status `json:"status"`
	}{StatusPendingApprover})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending_approver"}`, string(payload))

	var decoded struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Approved"}`), &decoded))
	assert.Equal(t, StatusApproved, decoded.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"nope"}`), &decoded))
}
