package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
)

// TestFamilyCoordinationFlow walks the primary product journey end to end:
// create a circle, invite a viewer, accept, and exercise the resulting
// capability split on medications.
func TestFamilyCoordinationFlow(t *testing.T) {
	db := openServicesTestDB(t)
	ctx := context.Background()

	resolver := newTestResolver(t, db)
	notifier, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)
	memberships, err := NewMembershipService(db, resolver, notifier)
	require.NoError(t, err)
	recipients, err := NewCareRecipientService(db, resolver, nil)
	require.NoError(t, err)
	medications, err := NewMedicationService(db, resolver)
	require.NoError(t, err)

	alice := newTestUser(t, db, "Alice")
	bob := newTestUser(t, db, "Bob")

	// Alice creates the circle and becomes its admin.
	grandma, err := recipients.Create(ctx, CreateCareRecipientInput{
		CreatorID: alice.ID,
		Name:      "Grandma",
	})
	require.NoError(t, err)

	// Bob cannot see the circle before joining.
	_, err = recipients.Get(ctx, bob.ID, grandma.ID)
	require.ErrorIs(t, err, permissions.ErrNotAMember)

	invite, err := memberships.Invite(ctx, InviteMemberInput{
		ActorID:     alice.ID,
		RecipientID: grandma.ID,
		Email:       bob.Email,
		Role:        models.RoleViewer,
	})
	require.NoError(t, err)

	// Still pending: no access yet.
	_, err = recipients.Get(ctx, bob.ID, grandma.ID)
	require.ErrorIs(t, err, permissions.ErrNotAMember)

	_, err = memberships.Accept(ctx, bob.ID, invite.ID)
	require.NoError(t, err)

	visible, err := recipients.Get(ctx, bob.ID, grandma.ID)
	require.NoError(t, err)
	require.Equal(t, grandma.ID, visible.ID)

	// Alice can prescribe, Bob cannot.
	aspirin, err := medications.Create(ctx, CreateMedicationInput{
		ActorID:     alice.ID,
		RecipientID: grandma.ID,
		Name:        "Aspirin",
		Dosage:      "100mg",
		Times:       []string{"08:00"},
	})
	require.NoError(t, err)

	_, err = medications.Create(ctx, CreateMedicationInput{
		ActorID:     bob.ID,
		RecipientID: grandma.ID,
		Name:        "Ibuprofen",
	})
	require.ErrorIs(t, err, permissions.ErrAccessDenied)

	// But Bob can confirm the dose was given.
	_, err = medications.LogDose(ctx, LogDoseInput{
		ActorID:      bob.ID,
		MedicationID: aspirin.ID,
		Status:       models.DoseTaken,
	})
	require.NoError(t, err)

	logs, err := medications.ListLogs(ctx, alice.ID, aspirin.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, bob.ID, logs[0].LoggedBy)

	// Bob leaves; the circle survives with Alice as sole admin.
	var bobMembership models.Membership
	require.NoError(t, db.First(&bobMembership,
		"user_id = ? AND care_recipient_id = ?", bob.ID, grandma.ID).Error)
	require.NoError(t, memberships.Remove(ctx, bob.ID, bobMembership.ID))

	_, err = recipients.Get(ctx, bob.ID, grandma.ID)
	require.ErrorIs(t, err, permissions.ErrNotAMember)
}
