package service

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) PublishToAllPlatforms(ctx context.Context, postID int64) ([]*PublishResult, error) {
	args := m.Called(ctx, postID)
	results, _ := args.Get(0).([]*PublishResult)
	return results, args.Error(1)
}

func (m *mockDispatcher) PublishToSocialMedia(ctx context.Context, postID, accountID int64) (*PublishResult, error) {
	args := m.Called(ctx, postID, accountID)
	result, _ := args.Get(0).(*PublishResult)
	return result, args.Error(1)
}
