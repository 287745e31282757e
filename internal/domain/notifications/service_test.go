package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms/internal/domain/workflow"
)

type created struct {
	tenantID, userID, ntype, title, body string
}

type fakeStore struct {
	created      []created
	emails       map[string]string
	employeeUser map[string]string
	emailEnabled bool
	emailFrom    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		emails: map[string]string{"u-owner": "owner@example.com", "u-checker": "checker@example.com"},
		employeeUser: map[string]string{
			"e-owner":    "u-owner",
			"e-checker":  "u-checker",
			"e-approver": "u-approver",
			"e-nologin":  "",
		},
	}
}

func (f *fakeStore) CreateNotification(_ context.Context, tenantID, userID, ntype, title, body string) error {
	f.created = append(f.created, created{tenantID, userID, ntype, title, body})
	return nil
}

func (f *fakeStore) UserEmail(_ context.Context, _, userID string) (string, error) {
	return f.emails[userID], nil
}

func (f *fakeStore) EmployeeUserID(_ context.Context, _, employeeID string) (string, error) {
	userID, ok := f.employeeUser[employeeID]
	if !ok {
		return "", errors.New("no rows")
	}
	return userID, nil
}

func (f *fakeStore) ListNotifications(context.Context, string, string, int, int) ([]Notification, error) {
	return nil, nil
}

func (f *fakeStore) CountNotifications(_ context.Context, _, _ string, unreadOnly bool) (int, error) {
	if unreadOnly {
		return 1, nil
	}
	return len(f.created), nil
}

func (f *fakeStore) MarkRead(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func (f *fakeStore) EmailSettings(context.Context, string) (bool, string, error) {
	return f.emailEnabled, f.emailFrom, nil
}

type fakeMailer struct {
	sent []Mail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Mail) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestCreateSendsMailOnlyWhenEnabled(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := New(store, mailer)

	require.NoError(t, svc.Create(context.Background(), "t1", "u-owner", TypeKPIApproved, "Approved", "body"))
	assert.Len(t, store.created, 1)
	assert.Empty(t, mailer.sent)

	store.emailEnabled = true
	store.emailFrom = "pms@example.com"
	require.NoError(t, svc.Create(context.Background(), "t1", "u-owner", TypeKPIApproved, "Approved", "body"))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, Mail{From: "pms@example.com", To: "owner@example.com", Subject: "Approved", Body: "body"}, mailer.sent[0])
}

func TestCreateIgnoresMailFailure(t *testing.T) {
	store := newFakeStore()
	store.emailEnabled = true
	svc := New(store, &fakeMailer{err: errors.New("smtp down")})
	assert.NoError(t, svc.Create(context.Background(), "t1", "u-owner", TypeKPIApproved, "Approved", "body"))
	assert.Len(t, store.created, 1)
}

func TestNotifyEmployeeSkipsEmployeesWithoutLogin(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)
	require.NoError(t, svc.NotifyEmployee(context.Background(), "t1", "e-nologin", TypeKPIApproved, "x", "y"))
	require.NoError(t, svc.NotifyEmployee(context.Background(), "t1", "", TypeKPIApproved, "x", "y"))
	assert.Empty(t, store.created)
	assert.Error(t, svc.NotifyEmployee(context.Background(), "t1", "e-unknown", TypeKPIApproved, "x", "y"))
}

func baseEvent(action workflow.Action) workflow.Event {
	return workflow.Event{
		TenantID:   "t1",
		RecordType: workflow.RecordKPIBonus,
		RecordID:   "rec-1",
		EmployeeID: "e-owner",
		CheckerID:  "e-checker",
		ApproverID: "e-approver",
		Action:     action,
		ActorName:  "Dana",
		At:         time.Now(),
	}
}

func TestWorkflowNotifierRoutesByAction(t *testing.T) {
	cases := []struct {
		name    string
		action  workflow.Action
		actorID string
		comment string
		want    []string
		ntype   string
	}{
		{name: "submitted goes to checker", action: workflow.ActionSubmitted, actorID: "e-owner", want: []string{"u-checker"}, ntype: TypeKPISubmitted},
		{name: "checked goes to approver and owner", action: workflow.ActionChecked, actorID: "e-checker", want: []string{"u-approver", "u-owner"}, ntype: TypeKPIChecked},
		{name: "approved goes to owner", action: workflow.ActionApproved, actorID: "e-approver", want: []string{"u-owner"}, ntype: TypeKPIApproved},
		{name: "rejected goes to owner", action: workflow.ActionRejected, actorID: "e-checker", comment: "missing data", want: []string{"u-owner"}, ntype: TypeKPIRejected},
		{name: "actor is never notified", action: workflow.ActionChecked, actorID: "e-owner", want: []string{"u-approver"}, ntype: TypeKPIChecked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			notifier := NewWorkflowNotifier(New(store, nil))
			evt := baseEvent(tc.action)
			evt.ActorID = tc.actorID
			evt.Comment = tc.comment

			var obs workflow.Observer = notifier
			obs.RecordChanged(context.Background(), evt)

			var users []string
			for _, c := range store.created {
				users = append(users, c.userID)
				assert.Equal(t, tc.ntype, c.ntype)
				assert.Equal(t, "t1", c.tenantID)
				if tc.comment != "" {
					assert.Contains(t, c.body, tc.comment)
				}
			}
			assert.Equal(t, tc.want, users)
		})
	}
}

func TestWorkflowNotifierIgnoresCreated(t *testing.T) {
	store := newFakeStore()
	NewWorkflowNotifier(New(store, nil)).RecordChanged(context.Background(), baseEvent(workflow.ActionCreated))
	assert.Empty(t, store.created)
}
