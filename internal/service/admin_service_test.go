package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (f *fixture) admins() AdminService {
	return NewAdminService(f.profiles, f.publisher, zap.NewNop())
}

func TestAppointedAdminCanReviewOnlyWithJournalRight(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	appointed, err := admins.AppointAdmin(f.ctx, f.monitor.ID, f.classmate.ID, AdminPermissions{})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, appointed.Role)
	assert.Equal(t, types.TierAdmin, Classify(appointed))
	assert.False(t, appointed.CanManageJournal)

	req := f.submit(t)
	_, err = f.svc.Approve(f.ctx, req.ID, f.classmate.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	updated, err := admins.UpdateAdminPermissions(f.ctx, f.monitor.ID, f.classmate.ID, AdminPermissions{CanManageJournal: true})
	require.NoError(t, err)
	assert.True(t, updated.CanManageJournal)

	approved, err := f.svc.Approve(f.ctx, req.ID, f.classmate.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)
}

func TestRemovedAdminLosesReviewRights(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	removed, err := admins.RemoveAdmin(f.ctx, f.monitor.ID, f.editor.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleNone, removed.Role)
	assert.False(t, removed.CanManageJournal, "rights are cleared with the role")

	_, err = f.svc.Approve(f.ctx, f.submit(t).ID, f.editor.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	list, err := admins.ListAdmins(f.ctx, f.monitor.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.helper.ID, list[0].ID)
}

func TestAdminManagementRequiresSuperuser(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	for _, actor := range []string{f.editor.ID, f.classmate.ID, f.alumni.ID, "00000000-0000-0000-0000-000000000000"} {
		_, err := admins.AppointAdmin(f.ctx, actor, f.classmate.ID, AdminPermissions{CanManageJournal: true})
		assert.ErrorIs(t, err, ErrPermissionDenied)
		_, err = admins.RemoveAdmin(f.ctx, actor, f.helper.ID)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		_, err = admins.UpdateAdminPermissions(f.ctx, actor, f.helper.ID, AdminPermissions{CanManageJournal: true})
		assert.ErrorIs(t, err, ErrPermissionDenied)
		_, err = admins.ListAdmins(f.ctx, actor)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	}

	helper, err := f.profiles.FindByID(f.ctx, f.helper.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, helper.Role)
	assert.False(t, helper.CanManageJournal)
}

func TestAppointAdminTargets(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	_, err := admins.AppointAdmin(f.ctx, f.monitor.ID, f.alumni.ID, AdminPermissions{})
	var verr *sentinel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "identity_type", verr.Field)

	_, err = admins.AppointAdmin(f.ctx, f.monitor.ID, f.helper.ID, AdminPermissions{})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = admins.AppointAdmin(f.ctx, f.monitor.ID, "not-a-uuid", AdminPermissions{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = admins.AppointAdmin(f.ctx, f.monitor.ID, "00000000-0000-0000-0000-000000000000", AdminPermissions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveAndUpdateTargets(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	_, err := admins.RemoveAdmin(f.ctx, f.monitor.ID, f.monitor.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied, "superusers cannot be removed")
	_, err = admins.RemoveAdmin(f.ctx, f.monitor.ID, f.classmate.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = admins.UpdateAdminPermissions(f.ctx, f.monitor.ID, f.alumni.ID, AdminPermissions{CanManageJournal: true})
	assert.ErrorIs(t, err, ErrNotFound)

	alumni, err := f.profiles.FindByID(f.ctx, f.alumni.ID)
	require.NoError(t, err)
	assert.False(t, alumni.CanManageJournal)
}

func TestPublishAnnouncementReachesAudience(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	delivered, err := admins.PublishAnnouncement(f.ctx, f.monitor.ID, Announcement{
		Title:   " Reunion ",
		Content: "The journal archive moves next week.",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, delivered)
	for _, id := range []string{f.alumni.ID, f.classmate.ID, f.editor.ID, f.helper.ID, f.monitor.ID} {
		assert.Equal(t, 1, f.unread(t, id))
	}

	list, err := f.publisher.List(f.ctx, f.alumni.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.NotificationSystemAnnouncement, list[0].Type)
	assert.Equal(t, "Reunion", list[0].Title)
	assert.Equal(t, f.monitor.ID, list[0].Payload["published_by"])

	delivered, err = admins.PublishAnnouncement(f.ctx, f.monitor.ID, Announcement{
		Title:    "Alumni only",
		Content:  "Request windows for the spring term are open.",
		Audience: []types.IdentityType{types.IdentityAlumni},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 2, f.unread(t, f.alumni.ID))
	assert.Equal(t, 1, f.unread(t, f.classmate.ID))
}

func TestPublishAnnouncementValidation(t *testing.T) {
	f := newFixture(t)
	admins := f.admins()

	tests := []struct {
		name  string
		input Announcement
		field string
	}{
		{"blank title", Announcement{Title: "  ", Content: "body"}, "title"},
		{"long title", Announcement{Title: strings.Repeat("t", 101), Content: "body"}, "title"},
		{"blank content", Announcement{Title: "title"}, "content"},
		{"unknown audience", Announcement{Title: "title", Content: "body", Audience: []types.IdentityType{"parents"}}, "audience"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := admins.PublishAnnouncement(f.ctx, f.monitor.ID, tt.input)
			var verr *sentinel.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err := admins.PublishAnnouncement(f.ctx, f.editor.ID, Announcement{Title: "title", Content: "body"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, f.unread(t, f.alumni.ID))
}

func TestPublishAnnouncementStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.notifications.SetCreateFailure(errors.New("disk full"))

	delivered, err := f.admins().PublishAnnouncement(f.ctx, f.monitor.ID, Announcement{Title: "title", Content: "body"})
	assert.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, delivered)
}
