package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRepository_CreateGroup(t *testing.T) {
	repo := NewGroupRepository(newTestDB(t))
	ctx := context.Background()

	group, err := repo.CreateGroup(ctx, "team", "our team", "u1")
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.NotEmpty(t, group.ID)
	assert.Equal(t, "team", group.Name)
	assert.Equal(t, "u1", group.CreatedBy)

	// 创建者自动成为管理员成员
	isAdmin, err := repo.IsAdmin(ctx, group.ID, "u1")
	require.NoError(t, err)
	assert.True(t, isAdmin)

	// 名称唯一
	_, err = repo.CreateGroup(ctx, "team", "", "u2")
	assert.ErrorIs(t, err, ErrGroupNameTaken)
}

func TestGroupRepository_Membership(t *testing.T) {
	repo := NewGroupRepository(newTestDB(t))
	ctx := context.Background()

	group, err := repo.CreateGroup(ctx, "team", "", "u1")
	require.NoError(t, err)

	require.NoError(t, repo.AddMember(ctx, group.ID, "u2", false))
	assert.ErrorIs(t, repo.AddMember(ctx, group.ID, "u2", false), ErrAlreadyMember)

	member, err := repo.IsMember(ctx, group.ID, "u2")
	require.NoError(t, err)
	assert.True(t, member)

	// 普通成员不是管理员
	isAdmin, err := repo.IsAdmin(ctx, group.ID, "u2")
	require.NoError(t, err)
	assert.False(t, isAdmin)

	members, err := repo.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)

	require.NoError(t, repo.RemoveMember(ctx, group.ID, "u2"))
	member, err = repo.IsMember(ctx, group.ID, "u2")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestGroupRepository_ListUserGroups(t *testing.T) {
	repo := NewGroupRepository(newTestDB(t))
	ctx := context.Background()

	g1, err := repo.CreateGroup(ctx, "team-a", "", "u1")
	require.NoError(t, err)
	g2, err := repo.CreateGroup(ctx, "team-b", "", "u2")
	require.NoError(t, err)
	require.NoError(t, repo.AddMember(ctx, g2.ID, "u1", false))
	_, err = repo.CreateGroup(ctx, "team-c", "", "u3")
	require.NoError(t, err)

	groups, err := repo.ListUserGroups(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	ids := []string{groups[0].ID, groups[1].ID}
	assert.ElementsMatch(t, []string{g1.ID, g2.ID}, ids)
}

func TestGroupRepository_UpdateGroup(t *testing.T) {
	repo := NewGroupRepository(newTestDB(t))
	ctx := context.Background()

	g1, err := repo.CreateGroup(ctx, "team-a", "", "u1")
	require.NoError(t, err)
	_, err = repo.CreateGroup(ctx, "team-b", "", "u2")
	require.NoError(t, err)

	// 改名为已占用的名称被拒绝
	err = repo.UpdateGroup(ctx, g1.ID, "team-b", "", "")
	assert.ErrorIs(t, err, ErrGroupNameTaken)

	require.NoError(t, repo.UpdateGroup(ctx, g1.ID, "team-renamed", "new desc", ""))
	group, err := repo.GetGroup(ctx, g1.ID)
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, "team-renamed", group.Name)
	assert.Equal(t, "new desc", group.Description)
}

func TestGroupRepository_DeleteGroupOnlyByCreator(t *testing.T) {
	repo := NewGroupRepository(newTestDB(t))
	ctx := context.Background()

	group, err := repo.CreateGroup(ctx, "team", "", "u1")
	require.NoError(t, err)
	require.NoError(t, repo.AddMember(ctx, group.ID, "u2", false))

	// 非创建者删除是空操作
	deleted, err := repo.DeleteGroup(ctx, group.ID, "u2")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteGroup(ctx, group.ID, "u1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// 群组与成员记录一并删除
	got, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	members, err := repo.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// 删除不存在的群组同样是空操作
	deleted, err = repo.DeleteGroup(ctx, "missing", "u1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
