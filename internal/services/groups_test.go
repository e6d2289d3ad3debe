package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/territory-studio/engine/internal/events"
	appErr "github.com/territory-studio/engine/pkg/errors"
)

func TestGroupCRUD(t *testing.T) {
	ws, rec := newTestWorkspace(t)
	ctx := context.Background()

	a, err := ws.AddGroup(ctx, &CreateGroupInput{Name: "North", Color: "#ff0000"})
	require.NoError(t, err)
	b, err := ws.AddGroup(ctx, &CreateGroupInput{Name: "South", Color: "#00ff00"})
	require.NoError(t, err)
	require.Equal(t, a.ID+1, b.ID)

	_, err = ws.AddGroup(ctx, &CreateGroupInput{Name: "north", Color: "#0000ff"})
	require.True(t, appErr.IsCode(err, appErr.CodeConflict))
	_, err = ws.AddGroup(ctx, &CreateGroupInput{Name: "East", Color: "blue-ish"})
	require.True(t, appErr.IsCode(err, appErr.CodeValidation))

	color := "#123456"
	updated, err := ws.UpdateGroup(ctx, b.ID, &UpdateGroupInput{Color: &color})
	require.NoError(t, err)
	require.Equal(t, "South", updated.Name)
	require.Equal(t, color, updated.Color)

	_, err = ws.UpdateGroup(ctx, 99, &UpdateGroupInput{Color: &color})
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	require.NoError(t, ws.DeleteGroup(ctx, b.ID))
	require.NoError(t, ws.DeleteGroup(ctx, b.ID))
	require.Len(t, ws.ListGroups(), 1)

	for _, k := range rec.kinds {
		require.Equal(t, events.KindGroupsUpdated, k)
	}
	require.Len(t, rec.kinds, 4)
}

func TestDeleteReferencedGroupFails(t *testing.T) {
	ws, rec := newTestWorkspace(t)
	g, _, _ := seed(t, ws)
	before := ws.ListGroups()
	rec.kinds = nil

	err := ws.DeleteGroup(context.Background(), g.ID)
	require.True(t, appErr.IsCode(err, appErr.CodeConflict))
	require.Contains(t, err.Error(), "group contains territories")
	require.Equal(t, before, ws.ListGroups())
	require.Empty(t, rec.kinds)
}
